// Package schema describes the JSON shape a generation is expected to return.
//
// A Node is a tagged variant: a string leaf, an array of one item node, or an
// object with ordered fields. Nodes are used twice per generation: once to
// instruct the model (see ToGenAI) and once to validate what came back (see Parse).
package schema

import (
	"encoding/json"
	"fmt"
)

// Kind is the tag of a Node
type Kind string

const (
	KindString Kind = "string"
	KindArray  Kind = "array"
	KindObject Kind = "object"
)

// Field is one named member of an object node
type Field struct {
	Name     string
	Node     *Node
	Required bool
}

// Node is one level of a response schema
type Node struct {
	Kind        Kind
	Description string  // generation hint, passed to the model verbatim
	Items       *Node   // set when Kind == KindArray
	Fields      []Field // set when Kind == KindObject, in declaration order
}

// String returns a string leaf
func String(description string) *Node {
	return &Node{Kind: KindString, Description: description}
}

// Array returns an array of items
func Array(items *Node, description string) *Node {
	return &Node{Kind: KindArray, Items: items, Description: description}
}

// Object returns an object with the given fields
func Object(fields ...Field) *Node {
	return &Node{Kind: KindObject, Fields: fields}
}

// Required declares a field the model must always return
func Required(name string, node *Node) Field {
	return Field{Name: name, Node: node, Required: true}
}

// Optional declares a field the model may omit
func Optional(name string, node *Node) Field {
	return Field{Name: name, Node: node}
}

// Field looks up a field by name
func (n *Node) Field(name string) (Field, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks the node is structurally sound
func (n *Node) Validate() error {
	return n.validate("$")
}

func (n *Node) validate(path string) error {
	if n == nil {
		return fmt.Errorf("%s: nil schema node", path)
	}

	switch n.Kind {
	case KindString:
		if n.Items != nil || len(n.Fields) > 0 {
			return fmt.Errorf("%s: string node cannot have items or fields", path)
		}
	case KindArray:
		if n.Items == nil {
			return fmt.Errorf("%s: array node requires items", path)
		}
		return n.Items.validate(path + "[]")
	case KindObject:
		if len(n.Fields) == 0 {
			return fmt.Errorf("%s: object node requires at least one field", path)
		}
		seen := make(map[string]bool, len(n.Fields))
		for _, f := range n.Fields {
			if f.Name == "" {
				return fmt.Errorf("%s: object field without a name", path)
			}
			if seen[f.Name] {
				return fmt.Errorf("%s: duplicate field %q", path, f.Name)
			}
			seen[f.Name] = true
			if err := f.Node.validate(path + "." + f.Name); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: unknown schema kind %q", path, n.Kind)
	}
	return nil
}

// jsonNode is the wire form used when a schema is served to clients
type jsonNode struct {
	Type             Kind             `json:"type"`
	Description      string           `json:"description,omitempty"`
	Items            *Node            `json:"items,omitempty"`
	Properties       map[string]*Node `json:"properties,omitempty"`
	PropertyOrdering []string         `json:"propertyOrdering,omitempty"`
	Required         []string         `json:"required,omitempty"`
}

// MarshalJSON renders the node in the JSON-schema-like shape clients expect
func (n *Node) MarshalJSON() ([]byte, error) {
	out := jsonNode{
		Type:        n.Kind,
		Description: n.Description,
		Items:       n.Items,
	}
	if n.Kind == KindObject {
		out.Properties = make(map[string]*Node, len(n.Fields))
		for _, f := range n.Fields {
			out.Properties[f.Name] = f.Node
			out.PropertyOrdering = append(out.PropertyOrdering, f.Name)
			if f.Required {
				out.Required = append(out.Required, f.Name)
			}
		}
	}
	return json.Marshal(out)
}
