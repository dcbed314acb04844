package mcp

import (
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// InputSchema returns the JSON Schema of the tool arguments.
// Properties keep the declaration order of the parameters.
func InputSchema(d *ToolDescriptor) *jsonschema.Schema {
	props := orderedmap.New[string, *jsonschema.Schema]()
	var required []string
	for _, p := range d.Parameters {
		props.Set(p.Name, &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		})
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

// ParametersFromSchema returns parameter specs for the properties of
// an object schema, in property order
func ParametersFromSchema(s *jsonschema.Schema) []ParameterSpec {
	if s == nil || s.Properties == nil {
		return nil
	}

	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}

	params := make([]ParameterSpec, 0, s.Properties.Len())
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		p := ParameterSpec{
			Name:     pair.Key,
			Required: required[pair.Key],
		}
		if pair.Value != nil {
			p.Type = ParamType(pair.Value.Type)
			p.Description = pair.Value.Description
		}
		params = append(params, p)
	}
	return params
}

// ToolInfoFromDescriptor returns the wire form of a descriptor
func ToolInfoFromDescriptor(d *ToolDescriptor) *ToolInfo {
	return &ToolInfo{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: InputSchema(d),
	}
}

// Descriptor rebuilds the descriptor from its wire form
func (t *ToolInfo) Descriptor() *ToolDescriptor {
	return &ToolDescriptor{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  ParametersFromSchema(t.InputSchema),
	}
}
