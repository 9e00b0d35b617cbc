package renderer

import (
	"fmt"
	"maps"

	goldmarkmeta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// Metadata is the frontmatter of a document. Raw keeps every key; the typed
// fields pick out the ones the UI shows.
type Metadata struct {
	Raw         map[string]any
	Title       string
	Description string
	Tags        []string
}

// IsZero reports whether the document had no frontmatter worth showing.
func (m Metadata) IsZero() bool {
	return m.Title == "" && m.Description == "" && len(m.Tags) == 0 && len(m.Raw) == 0
}

func extractMetadata(pc parser.Context) Metadata {
	raw := goldmarkmeta.Get(pc)
	if len(raw) == 0 {
		return Metadata{}
	}
	m := Metadata{Raw: maps.Clone(raw)}
	for key, v := range raw {
		switch key {
		case "title":
			m.Title, _ = scalarString(v)
		case "description", "summary":
			if m.Description == "" {
				m.Description, _ = scalarString(v)
			}
		case "tags", "keywords":
			if m.Tags == nil {
				m.Tags = stringList(v)
			}
		}
	}
	return m
}

// scalarString formats YAML scalars; maps and lists are rejected.
func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(val), true
	}
	return "", false
}

func stringList(v any) []string {
	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case []string:
		return append([]string(nil), val...)
	default:
		items = []any{val}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := scalarString(item); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
