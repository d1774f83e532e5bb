package types

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema uses reflection to generate the JSON Schema all
// descriptor documents are validated against before decoding. The config
// blob is mapped to a free-form object so it stays opaque to validation.
func GenerateJSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(json.RawMessage{}) {
				return &jsonschema.Schema{
					Type: "object",
				}
			}
			return nil
		},
	}

	schema, err := r.Reflect(&Metadata{}).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to create json schema for descriptor: %w", err)
	}

	return schema, nil
}
