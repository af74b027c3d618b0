package topictree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

var (
	ErrStructureGenerationFailed = errors.New("structure generation failed")
	ErrInvalidRequest            = errors.New("invalid topic tree request")
)

// FlatLimit is the largest topic count built as a flat root-plus-children tree.
const FlatLimit = 5

type Invoker interface {
	Invoke(ctx context.Context, p llm.Prompt, out any) error
}

type Request struct {
	Keyword  string
	Count    int
	Language string
	Country  string
	Audience string
}

type Builder struct {
	inv Invoker
	log *logger.Logger
}

func NewBuilder(inv Invoker, log *logger.Logger) *Builder {
	return &Builder{inv: inv, log: log.With("component", "TopicTreeBuilder")}
}

// Build returns a tree with exactly req.Count unique topics.
func (b *Builder) Build(ctx context.Context, req Request) (*Tree, error) {
	if req.Count < 1 {
		return nil, fmt.Errorf("%w: count must be at least 1", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Keyword) == "" {
		return nil, fmt.Errorf("%w: keyword required", ErrInvalidRequest)
	}
	tag := language.Make(req.Language)

	title := b.mainTitle(ctx, req)
	if req.Count == 1 {
		return newTree(upperFirst(title, tag)), nil
	}

	drafts, err := b.mindmap(ctx, req, title)
	if err != nil {
		return nil, err
	}

	rootText := title
	if len(drafts) == 1 {
		rootText = drafts[0].text
		drafts = drafts[0].children
	}
	t := newTree(upperFirst(rootText, tag))
	t.graft(drafts, req.Count, tag)
	t.reindex()

	if t.Len() < req.Count {
		if err := b.topUp(ctx, req, t, tag); err != nil {
			return nil, err
		}
	}
	if t.Len() != req.Count {
		return nil, fmt.Errorf("%w: %d of %d unique topics", ErrStructureGenerationFailed, t.Len(), req.Count)
	}

	if req.Count <= FlatLimit {
		t.flatten()
	} else {
		t.repair()
	}
	b.log.Info("topic tree built", "keyword", req.Keyword, "topics", t.Len(), "depth", t.Depth())
	return t, nil
}

type titleOutput struct {
	Title string `json:"title"`
}

func (o *titleOutput) Validate() error {
	if strings.TrimSpace(o.Title) == "" {
		return errors.New("empty title")
	}
	return nil
}

func (b *Builder) mainTitle(ctx context.Context, req Request) string {
	var out titleOutput
	err := b.inv.Invoke(ctx, llm.Prompt{
		Name:   "cluster_title",
		System: "You name content hubs.",
		User: fmt.Sprintf("Keyword: %s\nLanguage: %s\nCountry: %s\nReturn one page title for the hub page.",
			req.Keyword, req.Language, req.Country),
		Schema: llm.Object(map[string]any{"title": llm.String()}),
	}, &out)
	if err != nil {
		b.log.Warn("title generation failed, using keyword", "keyword", req.Keyword, "error", err)
		return req.Keyword
	}
	return strings.TrimSpace(out.Title)
}

type mindmapOutput struct {
	Mindmap string `json:"mindmap"`
}

// mindmap asks for the nested topic map, retrying once when the answer is
// unusable.
func (b *Builder) mindmap(ctx context.Context, req Request, title string) ([]*draft, error) {
	p := llm.Prompt{
		Name:   "mindmap",
		System: "You plan topic clusters. Answer with a nested mapping of topic names.",
		User: fmt.Sprintf("Main topic: %s\nKeyword: %s\nLanguage: %s\nCountry: %s\nAudience: %s\nTopics: %d\n"+
			"Return the mindmap as a JSON object where each key is a topic and each value holds its subtopics.",
			title, req.Keyword, req.Language, req.Country, req.Audience, req.Count),
		Schema: llm.Object(map[string]any{"mindmap": llm.String()}),
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var out mindmapOutput
		if err := b.inv.Invoke(ctx, p, &out); err != nil {
			lastErr = err
			continue
		}
		drafts, err := parseMindmap(out.Mindmap)
		if err != nil {
			lastErr = err
			b.log.Warn("mindmap unparsable", "attempt", attempt, "error", err)
			continue
		}
		return drafts, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrStructureGenerationFailed, lastErr)
}

type subtopicsOutput struct {
	Topics []string `json:"topics"`
}

// topUp walks the tree breadth-first once, asking for subtopics of each node
// until the requested count is reached.
func (b *Builder) topUp(ctx context.Context, req Request, t *Tree, tag language.Tag) error {
	existing := make([]string, 0, t.Len())
	for _, n := range t.Nodes() {
		existing = append(existing, n.Text)
	}
	for _, n := range t.Nodes() {
		need := req.Count - t.Len()
		if need <= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		var out subtopicsOutput
		err := b.inv.Invoke(ctx, llm.Prompt{
			Name:   "subtopics",
			System: "You extend topic clusters with distinct subtopics.",
			User: fmt.Sprintf("Topic: %s\nKeyword: %s\nLanguage: %s\nExisting topics: %s\nReturn %d new subtopics.",
				n.Text, req.Keyword, req.Language, strings.Join(existing, "; "), need),
			Schema: llm.Object(map[string]any{"topics": llm.StringList()}),
		}, &out)
		if err != nil {
			b.log.Warn("subtopics generation failed", "topic", n.Text, "error", err)
			continue
		}
		for _, s := range out.Topics {
			if t.Len() >= req.Count {
				break
			}
			if added, ok := t.add(n.ID, upperFirst(s, tag)); ok {
				existing = append(existing, added.Text)
			}
		}
	}
	t.reindex()
	return nil
}

type draft struct {
	text     string
	children []*draft
}

// graft adds drafts breadth-first below the root until limit nodes exist.
// Duplicate topics are skipped together with their subtrees.
func (t *Tree) graft(drafts []*draft, limit int, tag language.Tag) {
	type item struct {
		parent uuid.UUID
		d      *draft
	}
	queue := make([]item, 0, len(drafts))
	for _, d := range drafts {
		queue = append(queue, item{parent: t.Root, d: d})
	}
	for len(queue) > 0 && t.Len() < limit {
		it := queue[0]
		queue = queue[1:]
		n, ok := t.add(it.parent, upperFirst(it.d.text, tag))
		if !ok {
			continue
		}
		for _, c := range it.d.children {
			queue = append(queue, item{parent: n.ID, d: c})
		}
	}
}

// parseMindmap reads a nested mapping (JSON or YAML) preserving key order.
func parseMindmap(text string) ([]*draft, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```yaml")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty mindmap")
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parse mindmap: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("mindmap is not a mapping")
	}
	drafts := fromMapping(doc.Content[0])
	if len(drafts) == 0 {
		return nil, errors.New("empty mindmap")
	}
	return drafts, nil
}

func fromMapping(m *yaml.Node) []*draft {
	var out []*draft
	for i := 0; i+1 < len(m.Content); i += 2 {
		d := &draft{text: strings.TrimSpace(m.Content[i].Value)}
		if d.text == "" {
			continue
		}
		d.children = fromValue(m.Content[i+1])
		out = append(out, d)
	}
	return out
}

func fromValue(v *yaml.Node) []*draft {
	switch v.Kind {
	case yaml.MappingNode:
		return fromMapping(v)
	case yaml.SequenceNode:
		var out []*draft
		for _, item := range v.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				if s := strings.TrimSpace(item.Value); s != "" {
					out = append(out, &draft{text: s})
				}
			case yaml.MappingNode:
				out = append(out, fromMapping(item)...)
			}
		}
		return out
	default:
		return nil
	}
}
