package websearch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/xeipuuv/gojsonschema"
)

const argumentsSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string"}
  },
  "required": ["query"],
  "additionalProperties": false
}`

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func getSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(argumentsSchema))
	})
	return compiledSchema, compileErr
}

// ValidateArguments checks tool arguments against the input schema. Unknown
// keys, a missing query or a non-string query are validation errors.
func ValidateArguments(args map[string]any) error {
	schema, err := getSchema()
	if err != nil {
		return fmt.Errorf("compiling arguments schema: %w", err)
	}

	if args == nil {
		args = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &provider.ValidationError{Field: "arguments", Message: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return &provider.ValidationError{Field: "arguments", Message: strings.Join(msgs, "; ")}
}
