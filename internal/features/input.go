package features

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Input is a parsed submission. Text is used by text and choice features,
// Fields by pair features.
type Input struct {
	Text   string
	Fields map[string]string
}

// Value returns the input in the form it is stored in history:
// a string, or an object of named fields.
func (in Input) Value() any {
	if in.Fields != nil {
		out := make(map[string]any, len(in.Fields))
		for k, v := range in.Fields {
			out[k] = v
		}
		return out
	}
	return in.Text
}

// ParseInput decodes a raw JSON submission against the feature's input kind.
// Blank text or any blank pair field yields ErrEmptyInput.
func (d *Descriptor) ParseInput(raw json.RawMessage) (Input, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Input{}, ErrEmptyInput
	}

	switch d.Input.Kind {
	case InputPair:
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Input{}, fmt.Errorf("%w: expected an object with %s", ErrInvalidInput, d.fieldNames())
		}
		fields := make(map[string]string, len(d.Input.Fields))
		for _, f := range d.Input.Fields {
			v, ok := obj[f.Name].(string)
			if !ok && obj[f.Name] != nil {
				return Input{}, fmt.Errorf("%w: field %q must be a string", ErrInvalidInput, f.Name)
			}
			if strings.TrimSpace(v) == "" {
				return Input{}, ErrEmptyInput
			}
			fields[f.Name] = v
		}
		return Input{Fields: fields}, nil

	default:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return Input{}, fmt.Errorf("%w: expected a string", ErrInvalidInput)
		}
		if strings.TrimSpace(text) == "" {
			return Input{}, ErrEmptyInput
		}
		if d.Input.Kind == InputChoice && !slices.Contains(d.Input.Options, text) {
			return Input{}, fmt.Errorf("%w: %q is not one of the available options", ErrInvalidInput, text)
		}
		return Input{Text: text}, nil
	}
}

func (d *Descriptor) fieldNames() string {
	names := make([]string, len(d.Input.Fields))
	for i, f := range d.Input.Fields {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}
