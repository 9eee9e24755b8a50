package schema

import "google.golang.org/genai"

// ToGenAI converts the node into the response schema the Gemini API accepts.
// Object property order is carried through PropertyOrdering.
func (n *Node) ToGenAI() *genai.Schema {
	if n == nil {
		return nil
	}

	out := &genai.Schema{Description: n.Description}
	switch n.Kind {
	case KindString:
		out.Type = genai.TypeString
	case KindArray:
		out.Type = genai.TypeArray
		out.Items = n.Items.ToGenAI()
	case KindObject:
		out.Type = genai.TypeObject
		out.Properties = make(map[string]*genai.Schema, len(n.Fields))
		for _, f := range n.Fields {
			out.Properties[f.Name] = f.Node.ToGenAI()
			out.PropertyOrdering = append(out.PropertyOrdering, f.Name)
			if f.Required {
				out.Required = append(out.Required, f.Name)
			}
		}
	}
	return out
}
