// Package features holds the catalog of study tools: what each one asks for,
// the prompt it sends and the response shape it expects back.
package features

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"studyforge/internal/schema"
)

//go:embed catalog.yaml
var catalogYAML []byte

var (
	// ErrEmptyInput is returned for blank submissions. Callers treat it as a no-op.
	ErrEmptyInput = errors.New("input is empty")

	// ErrInvalidInput is returned when input does not fit the feature's input kind
	ErrInvalidInput = errors.New("invalid input")
)

// InputKind selects how a feature collects input
type InputKind string

const (
	InputText   InputKind = "text"
	InputPair   InputKind = "pair"
	InputChoice InputKind = "choice"
)

// InputField is one named entry of a pair input
type InputField struct {
	Name        string `yaml:"name" json:"name"`
	Placeholder string `yaml:"placeholder" json:"placeholder,omitempty"`
}

// InputSpec describes the form a client should render for a feature
type InputSpec struct {
	Kind        InputKind    `yaml:"kind" json:"kind"`
	Placeholder string       `yaml:"placeholder" json:"placeholder,omitempty"`
	Multiline   bool         `yaml:"multiline" json:"multiline,omitempty"`
	Fields      []InputField `yaml:"fields" json:"fields,omitempty"`
	Options     []string     `yaml:"options" json:"options,omitempty"`
}

// Descriptor is the static definition of one feature
type Descriptor struct {
	ID          string       `yaml:"id" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	Description string       `yaml:"description" json:"description"`
	Example     string       `yaml:"example" json:"example"`
	Guide       string       `yaml:"guide" json:"guide"`
	Category    string       `yaml:"-" json:"category"`
	Input       InputSpec    `yaml:"input" json:"input"`
	Prompt      string       `yaml:"prompt" json:"-"`
	Response    *schema.Node `yaml:"response" json:"responseSchema"`

	tmpl *template.Template
}

// Category is a named group of features, in catalog order
type Category struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	Features    []*Descriptor `yaml:"features" json:"features"`
}

// Registry is the immutable, validated feature catalog
type Registry struct {
	categories []Category
	ordered    []*Descriptor
	byID       map[string]*Descriptor
}

type catalogFile struct {
	Categories []Category `yaml:"categories"`
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the registry built from the embedded catalog
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = Load(catalogYAML)
	})
	return defaultRegistry, defaultErr
}

// Load parses and validates a catalog document
func Load(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse feature catalog: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("feature catalog has no categories")
	}

	r := &Registry{
		categories: file.Categories,
		byID:       make(map[string]*Descriptor),
	}

	for ci := range r.categories {
		cat := &r.categories[ci]
		if cat.Name == "" {
			return nil, fmt.Errorf("category %d has no name", ci)
		}
		for _, d := range cat.Features {
			d.Category = cat.Name
			if err := d.init(); err != nil {
				return nil, fmt.Errorf("feature %q: %w", d.ID, err)
			}
			if _, dup := r.byID[d.ID]; dup {
				return nil, fmt.Errorf("duplicate feature id %q", d.ID)
			}
			r.byID[d.ID] = d
			r.ordered = append(r.ordered, d)
		}
	}

	return r, nil
}

func (d *Descriptor) init() error {
	if d.ID == "" || d.Title == "" {
		return fmt.Errorf("id and title are required")
	}
	if d.Response == nil {
		return fmt.Errorf("missing response schema")
	}
	if err := d.Response.Validate(); err != nil {
		return fmt.Errorf("invalid response schema: %w", err)
	}

	if d.Input.Kind == "" {
		d.Input.Kind = InputText
	}
	switch d.Input.Kind {
	case InputText:
	case InputPair:
		if len(d.Input.Fields) < 2 {
			return fmt.Errorf("pair input needs at least two fields")
		}
	case InputChoice:
		if len(d.Input.Options) == 0 {
			return fmt.Errorf("choice input needs options")
		}
	default:
		return fmt.Errorf("unknown input kind %q", d.Input.Kind)
	}

	tmpl, err := template.New(d.ID).Option("missingkey=error").Parse(d.Prompt)
	if err != nil {
		return fmt.Errorf("invalid prompt template: %w", err)
	}
	d.tmpl = tmpl

	// Every placeholder must resolve against the declared input
	if _, err := d.BuildPrompt(d.sampleInput()); err != nil {
		return err
	}
	return nil
}

func (d *Descriptor) sampleInput() Input {
	if d.Input.Kind == InputPair {
		fields := make(map[string]string, len(d.Input.Fields))
		for _, f := range d.Input.Fields {
			fields[f.Name] = "sample"
		}
		return Input{Fields: fields}
	}
	return Input{Text: "sample"}
}

// Get looks up a feature by id
func (r *Registry) Get(id string) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// All returns every feature in catalog order
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Categories returns the feature groups in catalog order
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.categories))
	for i, c := range r.categories {
		out[i] = Category{
			Name:        c.Name,
			Description: c.Description,
			Features:    append([]*Descriptor(nil), c.Features...),
		}
	}
	return out
}

// Len returns the number of features
func (r *Registry) Len() int {
	return len(r.ordered)
}

// BuildPrompt renders the feature's prompt for the given input
func (d *Descriptor) BuildPrompt(in Input) (string, error) {
	data := make(map[string]string, len(in.Fields)+1)
	if d.Input.Kind == InputPair {
		for k, v := range in.Fields {
			data[k] = v
		}
	} else {
		data["input"] = in.Text
	}

	var buf bytes.Buffer
	if err := d.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
