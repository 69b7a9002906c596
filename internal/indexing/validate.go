package indexing

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const documentSchemaURL = "https://imas.local/schema/document.json"

//go:embed document.schema.json
var documentSchemaJSON []byte

var documentSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(documentSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to add document schema: %w", err)
	}
	return compiler.Compile(documentSchemaURL)
})

// ValidateDocument checks a record against the document schema.
// The returned error lists every violated constraint.
func ValidateDocument(fields map[string]any) error {
	sch, err := documentSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(fields); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("invalid document: %s", flattenValidationError(verr))
		}
		return fmt.Errorf("invalid document: %w", err)
	}
	return nil
}

// flattenValidationError renders a validation error on a single line
func flattenValidationError(verr *jsonschema.ValidationError) string {
	location := "$"
	if len(verr.InstanceLocation) > 0 {
		location = "$." + strings.Join(verr.InstanceLocation, ".")
	}
	lines := strings.Split(strings.TrimSpace(verr.Error()), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[i]), "-"))
	}
	return location + ": " + strings.Join(lines, "; ")
}
