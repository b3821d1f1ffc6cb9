package vars

import (
	"bytes"
	"encoding/json"

	"github.com/gravitational/trace"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// normalize round-trips v through JSON so schema validation always sees
// plain decoded values (maps, slices, json.Number) regardless of how the
// caller constructed them.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, trace.Wrap(err, "encode value")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, trace.Wrap(err, "decode value")
	}
	return out, nil
}

// compileSchema compiles a JSON-schema object into a validator.
func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	doc, err := normalize(schema)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, trace.Wrap(err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return compiled, nil
}

// validateValue checks value against the variable's schema, if any. The
// returned error carries the validator's message and is safe to show in a
// per-variable failure map.
func validateValue(schema map[string]any, value any) error {
	if schema == nil {
		return nil
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return trace.Wrap(err)
	}
	instance, err := normalize(value)
	if err != nil {
		return trace.Wrap(err)
	}
	return compiled.Validate(instance)
}
