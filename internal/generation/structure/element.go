package structure

import (
	"github.com/google/uuid"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
)

// Element is one placeholder of a page template and, once filled, one node
// of the generated content tree.
type Element struct {
	ID        uuid.UUID         `json:"content_id"`
	Tag       string            `json:"tag"`
	Position  int               `json:"position"`
	ClassName string            `json:"classname,omitempty"`
	Style     map[string]string `json:"style,omitempty"`
	Href      string            `json:"href,omitempty"`
	HTML      string            `json:"html,omitempty"`
	Settings  map[string]any    `json:"settings,omitempty"`
	Content   any               `json:"content,omitempty"`
	Processed bool              `json:"processed"`
	Children  []*Element        `json:"children,omitempty"`
}

func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := *e
	if e.Style != nil {
		out.Style = make(map[string]string, len(e.Style))
		for k, v := range e.Style {
			out.Style[k] = v
		}
	}
	if e.Settings != nil {
		out.Settings = cloneValue(e.Settings).(map[string]any)
	}
	out.Content = cloneValue(e.Content)
	if e.Children != nil {
		out.Children = make([]*Element, len(e.Children))
		for i, c := range e.Children {
			out.Children[i] = c.Clone()
		}
	}
	return &out
}

// Text returns the content when it is a string.
func (e *Element) Text() string {
	s, _ := e.Content.(string)
	return s
}

func (e *Element) Setting(key string) string {
	if e.Settings == nil {
		return ""
	}
	s, _ := e.Settings[key].(string)
	return s
}

func (e *Element) SetSetting(key string, v any) {
	if e.Settings == nil {
		e.Settings = map[string]any{}
	}
	e.Settings[key] = v
}

func (e *Element) Child(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// Walk visits e and every descendant depth-first.
func (e *Element) Walk(fn func(*Element)) {
	fn(e)
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val).(map[string]any)
		}
		return out
	default:
		return v
	}
}

// Structure is the compiled, position-ordered template of one intent.
type Structure struct {
	Intent   cluster.Intent `json:"intent"`
	Elements []*Element     `json:"elements"`
}

func (s *Structure) Clone() *Structure {
	out := &Structure{Intent: s.Intent, Elements: make([]*Element, len(s.Elements))}
	for i, e := range s.Elements {
		out.Elements[i] = e.Clone()
	}
	return out
}

// Instantiate clones the template and gives every element a fresh id.
func (s *Structure) Instantiate() *Structure {
	out := s.Clone()
	for _, e := range out.Elements {
		e.Walk(func(el *Element) { el.ID = uuid.New() })
	}
	return out
}

// Get returns the top-level element with tag, or nil.
func (s *Structure) Get(tag string) *Element {
	for _, e := range s.Elements {
		if e.Tag == tag {
			return e
		}
	}
	return nil
}

func (s *Structure) Has(tag string) bool { return s.Get(tag) != nil }

// Find searches the whole tree for tag.
func (s *Structure) Find(tag string) *Element {
	var found *Element
	for _, e := range s.Elements {
		e.Walk(func(el *Element) {
			if found == nil && el.Tag == tag {
				found = el
			}
		})
		if found != nil {
			return found
		}
	}
	return nil
}

func (s *Structure) Len() int { return len(s.Elements) }

// HasImages reports whether any element in the tree renders a generated image.
func (s *Structure) HasImages() bool {
	found := false
	for _, e := range s.Elements {
		e.Walk(func(el *Element) {
			if IsImage(el.Tag) || el.Tag == TagCTAImg {
				found = true
			}
		})
	}
	return found
}
