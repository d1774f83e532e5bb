package types

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiledSchema compiles the generated descriptor schema exactly once, the
// descriptor model cannot change at runtime.
var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	raw, err := GenerateJSONSchema()
	if err != nil {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("descriptor.schema.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add descriptor.schema.json: %w", err)
	}
	sch, err := c.Compile("descriptor.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile descriptor.schema.json: %w", err)
	}
	return sch, nil
})

// validateSchema validates a descriptor document, given as JSON, against the
// compiled schema. Schema violations are reported with their document paths,
// which catches mistyped fields before decoding silently drops them.
func validateSchema(jsonDoc []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonDoc))
	if err != nil {
		return fmt.Errorf("failed to unmarshal descriptor: %w", err)
	}

	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("descriptor does not match schema: %w", err)
	}
	return nil
}
