package features

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDefaultRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Default()
	require.NoError(t, err)
	return r
}

func TestDefault_LoadsEmbeddedCatalog(t *testing.T) {
	r := mustDefaultRegistry(t)

	assert.Equal(t, 36, r.Len())

	var names []string
	total := 0
	for _, c := range r.Categories() {
		names = append(names, c.Name)
		total += len(c.Features)
		for _, d := range c.Features {
			assert.Equal(t, c.Name, d.Category, d.ID)
		}
	}
	assert.Equal(t, []string{
		"Unique Cognitive Enhancers",
		"Medical Student Toolkit",
		"High School Essentials",
		"General Student Tools",
	}, names)
	assert.Equal(t, 36, total)
}

func TestRegistry_AllFollowsCatalogOrder(t *testing.T) {
	r := mustDefaultRegistry(t)

	all := r.All()
	require.NotEmpty(t, all)
	assert.Equal(t, "five-whys-explorer", all[0].ID)
	assert.Equal(t, "concept-mapper", all[len(all)-1].ID)

	// mutating the returned slice must not affect the registry
	all[0] = nil
	assert.NotNil(t, r.All()[0])
}

func TestRegistry_Get(t *testing.T) {
	r := mustDefaultRegistry(t)

	d, ok := r.Get("text-summarizer")
	require.True(t, ok)
	assert.Equal(t, "Text Summarizer", d.Title)
	assert.Equal(t, "General Student Tools", d.Category)
	assert.True(t, d.Input.Multiline)

	_, ok = r.Get("does-not-exist")
	assert.False(t, ok)
}

func TestBuildPrompt(t *testing.T) {
	r := mustDefaultRegistry(t)

	tests := []struct {
		id    string
		input Input
		want  string
	}{
		{
			id:    "topic-explorer",
			input: Input{Text: "Black Holes"},
			want:  `Please provide a breakdown of the following topic for a student: "Black Holes"`,
		},
		{
			id:    "text-summarizer",
			input: Input{Text: "Some article."},
			want:  "Summarize the following text in a clear and concise paragraph:\n\n---\nSome article.\n---",
		},
		{
			id:    "drug-interaction-checker",
			input: Input{Text: "Warfarin, Aspirin"},
			want:  "Analyze the potential drug interaction between the following drugs: Warfarin, Aspirin. Describe the interaction type, mechanism, and clinical significance.",
		},
		{
			id:    "connection-weaver",
			input: Input{Fields: map[string]string{"topicA": "Jazz", "topicB": "Quantum Physics"}},
			want:  `Find and explain a surprising or insightful connection between two seemingly unrelated topics: "Jazz" and "Quantum Physics". Provide a narrative and list the key concepts that bridge them.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			d, ok := r.Get(tt.id)
			require.True(t, ok)

			got, err := d.BuildPrompt(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPrompt_DoesNotInterpretInput(t *testing.T) {
	r := mustDefaultRegistry(t)
	d, _ := r.Get("topic-explorer")

	got, err := d.BuildPrompt(Input{Text: "{{.secret}}"})
	require.NoError(t, err)
	assert.Contains(t, got, `"{{.secret}}"`)
}

func TestParseInput(t *testing.T) {
	r := mustDefaultRegistry(t)
	text, _ := r.Get("flashcard-generator")
	pair, _ := r.Get("connection-weaver")
	choice, _ := r.Get("mental-models-explainer")

	tests := []struct {
		name    string
		d       *Descriptor
		raw     string
		want    Input
		wantErr error
	}{
		{"text", text, `"Cell biology"`, Input{Text: "Cell biology"}, nil},
		{"blank text", text, `"   "`, Input{}, ErrEmptyInput},
		{"missing", text, ``, Input{}, ErrEmptyInput},
		{"null", text, `null`, Input{}, ErrEmptyInput},
		{"text as object", text, `{"a":1}`, Input{}, ErrInvalidInput},
		{"pair", pair, `{"topicA":"Jazz","topicB":"Physics","extra":"x"}`,
			Input{Fields: map[string]string{"topicA": "Jazz", "topicB": "Physics"}}, nil},
		{"pair with blank side", pair, `{"topicA":"Jazz","topicB":" "}`, Input{}, ErrEmptyInput},
		{"pair missing side", pair, `{"topicA":"Jazz"}`, Input{}, ErrEmptyInput},
		{"pair as string", pair, `"Jazz"`, Input{}, ErrInvalidInput},
		{"pair with number", pair, `{"topicA":"Jazz","topicB":3}`, Input{}, ErrInvalidInput},
		{"choice", choice, `"Inversion"`, Input{Text: "Inversion"}, nil},
		{"unknown choice", choice, `"Sunk Cost"`, Input{}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.d.ParseInput(json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseInput(%s) error = %v, want %v", tt.raw, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInputValue(t *testing.T) {
	assert.Equal(t, "topic", Input{Text: "topic"}.Value())
	assert.Equal(t,
		map[string]any{"topicA": "a", "topicB": "b"},
		Input{Fields: map[string]string{"topicA": "a", "topicB": "b"}}.Value(),
	)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", `categories: []`},
		{"duplicate id", `
categories:
  - name: A
    features:
      - {id: x, title: X, prompt: "{{.input}}", response: {type: string}}
      - {id: x, title: Y, prompt: "{{.input}}", response: {type: string}}
`},
		{"unknown placeholder", `
categories:
  - name: A
    features:
      - {id: x, title: X, prompt: "{{.topic}}", response: {type: string}}
`},
		{"bad schema", `
categories:
  - name: A
    features:
      - {id: x, title: X, prompt: "{{.input}}", response: {type: array}}
`},
		{"choice without options", `
categories:
  - name: A
    features:
      - {id: x, title: X, input: {kind: choice}, prompt: "{{.input}}", response: {type: string}}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDescriptor_JSONHidesPrompt(t *testing.T) {
	r := mustDefaultRegistry(t)
	d, _ := r.Get("practice-quiz")

	data, err := json.Marshal(d)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.NotContains(t, got, "prompt")
	assert.Equal(t, "practice-quiz", got["id"])
	schema, ok := got["responseSchema"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", schema["type"])
}
