package indexing

// Extraction and indexing constants
const (
	// DefaultBatchSize is the number of documents per batch handed to index builders
	DefaultBatchSize = 500

	// ProgressLogInterval is how many yielded documents pass between progress description updates
	ProgressLogInterval = 50

	// UnitsAsParent marks a node whose units are inherited from its nearest ancestor
	UnitsAsParent = "as_parent"

	// UnitsNone is used when neither the node nor any ancestor declares units
	UnitsNone = "none"

	// IDSTag is the element tag of a top-level structure in IDSDef.xml
	IDSTag = "IDS"

	// CharsPerToken is the approximation for token estimation
	CharsPerToken = 4

	// MaxEmbeddingTokens caps the text sent to embedding models (~8000 chars)
	MaxEmbeddingTokens = 2000

	// IndexSchemaVersion increments when the document layout or composition changes
	// v1: path/documentation/units/ids_name, v2: keywords and token counts
	IndexSchemaVersion = 2
)

// IndexPrefix names an index backend strategy
type IndexPrefix string

const (
	PrefixLexicographic IndexPrefix = "lexicographic"
	PrefixSemantic      IndexPrefix = "semantic"
)

// Valid reports whether p is a known backend prefix
func (p IndexPrefix) Valid() bool {
	return p == PrefixLexicographic || p == PrefixSemantic
}
