package topictree

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Node is one topic of a cluster. Its ID becomes the page id.
type Node struct {
	ID         uuid.UUID
	Text       string
	ParentID   *uuid.UUID
	Children   []uuid.UUID
	Neighbours []uuid.UUID
	Position   int
}

// Tree is a rooted topic hierarchy with unique (normalised) topic texts.
type Tree struct {
	Root  uuid.UUID
	nodes map[uuid.UUID]*Node
	order []uuid.UUID
	seen  map[string]struct{}
}

func newTree(rootText string) *Tree {
	t := &Tree{nodes: map[uuid.UUID]*Node{}, seen: map[string]struct{}{}}
	root := &Node{ID: uuid.New(), Text: rootText}
	t.Root = root.ID
	t.nodes[root.ID] = root
	t.seen[dedupeKey(rootText)] = struct{}{}
	t.reindex()
	return t
}

func (t *Tree) Len() int { return len(t.nodes) }

func (t *Tree) Node(id uuid.UUID) *Node { return t.nodes[id] }

// Nodes returns every node in breadth-first order, root first.
func (t *Tree) Nodes() []*Node {
	out := make([]*Node, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.nodes[id])
	}
	return out
}

// Depth is the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(id uuid.UUID) int
	walk = func(id uuid.UUID) int {
		best := 0
		for _, c := range t.nodes[id].Children {
			if d := walk(c) + 1; d > best {
				best = d
			}
		}
		return best
	}
	return walk(t.Root)
}

// add attaches a new child unless an equivalent topic already exists.
func (t *Tree) add(parent uuid.UUID, text string) (*Node, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	key := dedupeKey(text)
	if _, dup := t.seen[key]; dup {
		return nil, false
	}
	p := t.nodes[parent]
	if p == nil {
		return nil, false
	}
	pid := parent
	n := &Node{ID: uuid.New(), Text: text, ParentID: &pid}
	t.nodes[n.ID] = n
	t.seen[key] = struct{}{}
	p.Children = append(p.Children, n.ID)
	return n, true
}

func (t *Tree) reparent(id, newParent uuid.UUID) {
	n := t.nodes[id]
	if n == nil || n.ParentID == nil || *n.ParentID == newParent {
		return
	}
	old := t.nodes[*n.ParentID]
	for i, c := range old.Children {
		if c == id {
			old.Children = append(old.Children[:i:i], old.Children[i+1:]...)
			break
		}
	}
	np := newParent
	n.ParentID = &np
	t.nodes[newParent].Children = append(t.nodes[newParent].Children, id)
}

// flatten hangs every topic directly under the root.
func (t *Tree) flatten() {
	for _, n := range t.Nodes() {
		if n.ID != t.Root {
			t.reparent(n.ID, t.Root)
		}
	}
	t.reindex()
}

// repair removes single-child branches so every inner node has at least two
// children where the node count allows it.
func (t *Tree) repair() {
	for changed := true; changed; {
		changed = false
		t.reindex()
		for _, n := range t.Nodes() {
			if len(n.Children) != 1 {
				continue
			}
			only := t.nodes[n.Children[0]]
			switch {
			case n.ParentID != nil:
				t.reparent(only.ID, *n.ParentID)
				changed = true
			case len(only.Children) > 0:
				for _, gc := range append([]uuid.UUID(nil), only.Children...) {
					t.reparent(gc, n.ID)
				}
				changed = true
			}
			if changed {
				break
			}
		}
	}
	t.reindex()
}

func (t *Tree) reindex() {
	t.order = t.order[:0]
	queue := []uuid.UUID{t.Root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := t.nodes[id]
		n.Position = len(t.order)
		t.order = append(t.order, id)
		queue = append(queue, n.Children...)
	}
	for _, n := range t.nodes {
		n.Neighbours = nil
		if n.ParentID == nil {
			continue
		}
		for _, sib := range t.nodes[*n.ParentID].Children {
			if sib != n.ID {
				n.Neighbours = append(n.Neighbours, sib)
			}
		}
	}
}

func dedupeKey(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}), " ")
}

func upperFirst(s string, tag language.Tag) string {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return cases.Upper(tag).String(string(r)) + s[size:]
}
