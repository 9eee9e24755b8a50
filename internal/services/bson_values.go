package services

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// normalizeBSON converts decoded BSON documents and arrays into the plain
// map[string]any / []any shapes that JSON decoding produces, so history
// values compare equal whichever backend stored them
func normalizeBSON(v any) any {
	switch val := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeBSON(item)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeBSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeBSON(item)
		}
		return out
	default:
		return v
	}
}
