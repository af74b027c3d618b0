package pages

import (
	"sort"

	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
)

// Result is the output of one page pipeline. Original is the content before
// link and reference injection; Release is what gets published.
type Result struct {
	Original []*structure.Element `json:"original"`
	Release  []*structure.Element `json:"release"`
}

// Valid reports whether both trees carry content. Invalid results are never
// persisted.
func (r *Result) Valid() bool {
	return r != nil && len(r.Original) > 0 && len(r.Release) > 0
}

// Filter returns deep copies of the processed elements ordered by position.
// Unprocessed elements are dropped together with their subtrees.
func Filter(els []*structure.Element) []*structure.Element {
	out := make([]*structure.Element, 0, len(els))
	for _, e := range els {
		if e == nil || !e.Processed {
			continue
		}
		c := e.Clone()
		c.Children = Filter(e.Children)
		if len(e.Children) == 0 {
			c.Children = nil
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
