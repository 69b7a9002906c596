package tools

import (
	"embed"

	"github.com/imas/mcp-server/internal/schema"
)

// A trimmed Data Dictionary (core_profiles, equilibrium, magnetics) so the
// server works without an external IDSDef.xml
//
//go:embed data/IDSDef.xml
var embeddedFS embed.FS

const embeddedDictionary = "data/IDSDef.xml"

// DictionarySource returns the Data Dictionary at xmlPath, or the bundled one if xmlPath is empty
func DictionarySource(xmlPath string) schema.Source {
	if xmlPath == "" {
		return schema.FSSource(embeddedFS, embeddedDictionary)
	}
	return schema.FileSource(xmlPath)
}
