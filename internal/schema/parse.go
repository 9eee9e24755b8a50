package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedJSON is returned when the text is not a JSON document
	ErrMalformedJSON = errors.New("response is not valid JSON")

	// ErrSchemaViolation is returned when the JSON does not have the declared shape
	ErrSchemaViolation = errors.New("response does not match schema")
)

// ViolationError pinpoints where a value departs from its schema
type ViolationError struct {
	Path   string
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s at %s: %s", ErrSchemaViolation.Error(), e.Path, e.Reason)
}

func (e *ViolationError) Unwrap() error {
	return ErrSchemaViolation
}

func violation(path, format string, args ...any) error {
	return &ViolationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Parse decodes text as JSON and conforms it to the node.
// The returned value only holds string, []any and map[string]any.
func (n *Node) Parse(text string) (any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedJSON)
	}

	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return n.Conform(raw)
}

// Conform checks an already decoded value against the node. Object fields
// the schema does not declare are dropped; a null optional field counts as absent.
func (n *Node) Conform(value any) (any, error) {
	return n.conform(value, "$")
}

func (n *Node) conform(value any, path string) (any, error) {
	switch n.Kind {
	case KindString:
		s, ok := value.(string)
		if !ok {
			return nil, violation(path, "expected string, got %s", typeName(value))
		}
		return s, nil

	case KindArray:
		items, ok := value.([]any)
		if !ok {
			return nil, violation(path, "expected array, got %s", typeName(value))
		}
		out := make([]any, 0, len(items))
		for i, item := range items {
			v, err := n.Items.conform(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, violation(path, "expected object, got %s", typeName(value))
		}
		out := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			fieldPath := path + "." + f.Name
			v, present := obj[f.Name]
			if !present || v == nil {
				if f.Required {
					return nil, violation(fieldPath, "required field missing")
				}
				continue
			}
			cv, err := f.Node.conform(v, fieldPath)
			if err != nil {
				return nil, err
			}
			out[f.Name] = cv
		}
		return out, nil
	}

	return nil, violation(path, "unknown schema kind %q", n.Kind)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
