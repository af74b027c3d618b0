package structure

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
)

var ErrCompile = errors.New("content structure compile failed")

// Compile turns element params into the ordered template for intent.
// Disabled params are skipped. Grouped children are moved under their parent;
// a parent missing a required child is dropped along with its children, and
// children whose parent is absent are dropped too. With no params the
// embedded preset for the intent is used.
func Compile(params []cluster.ElementParam, intent cluster.Intent, author *cluster.Author) (*Structure, error) {
	if !intent.Valid() {
		return nil, fmt.Errorf("%w: unknown intent %q", ErrCompile, intent)
	}
	if len(params) == 0 {
		preset, err := Preset(intent)
		if err != nil {
			return nil, err
		}
		params = preset
	}

	enabled := make([]cluster.ElementParam, 0, len(params))
	seen := map[string]bool{}
	for _, p := range params {
		tag := strings.ToUpper(strings.TrimSpace(p.Type))
		if tag == "" {
			return nil, fmt.Errorf("%w: element without type", ErrCompile)
		}
		if seen[tag] {
			return nil, fmt.Errorf("%w: duplicate element %s", ErrCompile, tag)
		}
		seen[tag] = true
		if !p.Enabled {
			continue
		}
		p.Type = tag
		enabled = append(enabled, p)
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Position < enabled[j].Position })

	var top []*Element
	parents := map[string]*Element{}
	for _, p := range enabled {
		if _, grouped := parentOf[p.Type]; grouped {
			continue
		}
		e := fromParam(p)
		if p.Type == TagAuthor {
			if author == nil {
				continue
			}
			e.Content = map[string]any{"name": author.Name, "description": author.Description, "image": author.Image}
			e.Processed = true
		}
		top = append(top, e)
		if _, ok := groups[p.Type]; ok {
			parents[p.Type] = e
		}
	}

	for _, p := range enabled {
		parentTag, grouped := parentOf[p.Type]
		if !grouped {
			continue
		}
		parent := parents[parentTag]
		if parent == nil {
			continue
		}
		child := fromParam(p)
		child.Position = parent.Position
		parent.Children = append(parent.Children, child)
	}

	out := &Structure{Intent: intent, Elements: make([]*Element, 0, len(top))}
	for _, e := range top {
		if g, ok := groups[e.Tag]; ok && !groupComplete(e, g) {
			continue
		}
		out.Elements = append(out.Elements, e)
	}
	// Dependencies are checked against the surviving elements only.
	kept := make([]*Element, 0, len(out.Elements))
	for _, e := range out.Elements {
		if g, ok := groups[e.Tag]; ok && g.dependsOn != "" && out.Find(g.dependsOn) == nil {
			continue
		}
		kept = append(kept, e)
	}
	out.Elements = kept
	return out, nil
}

func groupComplete(e *Element, g group) bool {
	for _, r := range g.required {
		if e.Child(r) == nil {
			return false
		}
	}
	return len(e.Children) >= g.minChildren
}

func fromParam(p cluster.ElementParam) *Element {
	e := &Element{Tag: p.Type, Position: p.Position, ClassName: p.ClassName}
	if len(p.Style) > 0 {
		e.Style = make(map[string]string, len(p.Style))
		for k, v := range p.Style {
			e.Style[k] = v
		}
	}
	if len(p.Settings) > 0 {
		e.Settings = cloneValue(p.Settings).(map[string]any)
	}
	return e
}

// CompileAll compiles one template per intent. Intents without a settings row
// fall back to their preset.
func CompileAll(rows []*cluster.ClusterSettings) (map[cluster.Intent]*Structure, error) {
	byIntent := make(map[cluster.Intent]*cluster.ClusterSettings, len(rows))
	for _, r := range rows {
		if r != nil {
			byIntent[r.Intent] = r
		}
	}
	out := make(map[cluster.Intent]*Structure, len(cluster.Intents))
	for _, intent := range cluster.Intents {
		var (
			params []cluster.ElementParam
			author *cluster.Author
		)
		if row := byIntent[intent]; row != nil {
			p, err := row.ElementParams()
			if err != nil {
				return nil, fmt.Errorf("%w: %s elements: %v", ErrCompile, intent, err)
			}
			params, author = p, row.AuthorInfo()
		}
		s, err := Compile(params, intent, author)
		if err != nil {
			return nil, err
		}
		out[intent] = s
	}
	return out, nil
}
