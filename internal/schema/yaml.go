package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlNode mirrors the catalog form of a schema. Properties is kept as a raw
// mapping node so field order survives decoding.
type yamlNode struct {
	Type        Kind      `yaml:"type"`
	Description string    `yaml:"description"`
	Items       *Node     `yaml:"items"`
	Properties  yaml.Node `yaml:"properties"`
	Required    []string  `yaml:"required"`
}

// UnmarshalYAML decodes a schema written in the catalog, e.g.
//
//	type: object
//	properties:
//	  summary: {type: string, description: A concise summary}
//	  keyPoints: {type: array, items: {type: string}}
//	required: [summary]
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var raw yamlNode
	if err := value.Decode(&raw); err != nil {
		return err
	}

	n.Kind = raw.Type
	n.Description = raw.Description
	n.Items = raw.Items
	n.Fields = nil

	// zero Kind means the key was absent
	if raw.Properties.Kind == 0 {
		if len(raw.Required) > 0 {
			return fmt.Errorf("line %d: required listed without properties", value.Line)
		}
		return nil
	}
	if raw.Properties.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", raw.Properties.Line)
	}

	required := make(map[string]bool, len(raw.Required))
	for _, name := range raw.Required {
		required[name] = true
	}

	content := raw.Properties.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value
		child := &Node{}
		if err := content[i+1].Decode(child); err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		n.Fields = append(n.Fields, Field{Name: name, Node: child, Required: required[name]})
	}

	for _, name := range raw.Required {
		if _, ok := n.Field(name); !ok {
			return fmt.Errorf("line %d: required field %q is not a declared property", value.Line, name)
		}
	}
	return nil
}
