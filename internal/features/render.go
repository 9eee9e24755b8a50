package features

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"studyforge/internal/schema"
)

// Rendered is a generation result laid out for display
type Rendered struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// Raw HTML from model output is dropped by goldmark's default renderer
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// Render lays out a conformed result following the response schema's field order
func (d *Descriptor) Render(output any) (Rendered, error) {
	var b strings.Builder
	writeNode(&b, d.Response, output, 0)
	md := strings.TrimSpace(b.String()) + "\n"

	var html bytes.Buffer
	if err := markdown.Convert([]byte(md), &html); err != nil {
		return Rendered{}, fmt.Errorf("failed to render result: %w", err)
	}
	return Rendered{Markdown: md, HTML: html.String()}, nil
}

func writeNode(b *strings.Builder, node *schema.Node, value any, depth int) {
	switch node.Kind {
	case schema.KindString:
		s, _ := value.(string)
		b.WriteString(escapeMarkdown(s))
		b.WriteString("\n\n")

	case schema.KindArray:
		items, _ := value.([]any)
		if node.Items.Kind == schema.KindString {
			for _, item := range items {
				s, _ := item.(string)
				b.WriteString("- ")
				b.WriteString(escapeMarkdown(strings.ReplaceAll(s, "\n", " ")))
				b.WriteString("\n")
			}
			b.WriteString("\n")
			return
		}
		for i, item := range items {
			fmt.Fprintf(b, "%s %d\n\n", headingPrefix(depth+1), i+1)
			writeNode(b, node.Items, item, depth+1)
		}

	case schema.KindObject:
		obj, _ := value.(map[string]any)
		for _, f := range node.Fields {
			v, ok := obj[f.Name]
			if !ok {
				continue
			}
			label := Humanize(f.Name)
			if f.Node.Kind == schema.KindString && depth > 0 {
				s, _ := v.(string)
				fmt.Fprintf(b, "**%s:** %s\n\n", label, escapeMarkdown(s))
				continue
			}
			if depth == 0 {
				fmt.Fprintf(b, "## %s\n\n", label)
			} else {
				fmt.Fprintf(b, "**%s:**\n\n", label)
			}
			writeNode(b, f.Node, v, depth+1)
		}
	}
}

func headingPrefix(depth int) string {
	level := depth + 2
	if level > 6 {
		level = 6
	}
	return strings.Repeat("#", level)
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	">", `\>`,
	"#", `\#`,
	"|", `\|`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(strings.TrimSpace(s))
}

// Humanize turns a camelCase field name into a display label:
// "keyConcepts" becomes "Key Concepts".
func Humanize(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) && !unicode.IsUpper(runes[i-1]) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
