package elements

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
)

// Link is an anchor to weave into generated text.
type Link struct {
	HTML    string
	Keyword string
}

func SourceLink(link, keyword string) Link {
	return Link{
		HTML:    fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(link), html.EscapeString(keyword)),
		Keyword: keyword,
	}
}

func RelationLink(r Relation) Link {
	return Link{HTML: r.Anchor(), Keyword: r.Topic}
}

type backlinkOut struct {
	Text string `json:"text"`
	link string
}

func (o *backlinkOut) Validate() error {
	if !strings.Contains(o.Text, o.link) {
		return errors.New("anchor missing from rewritten text")
	}
	return nil
}

// Weave asks the model to work the anchor into text. When the model cannot,
// the anchor is appended as its own sentence so the link is never lost.
func (s *Service) Weave(ctx context.Context, text string, l Link, pc *PageContext) string {
	out := backlinkOut{link: l.HTML}
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "backlink",
		System: "You edit HTML paragraphs. Keep the meaning and the language.",
		User: fmt.Sprintf("Language: %s\nParagraph:\n%s\n\nRewrite the paragraph so it naturally contains this exact HTML anchor, unchanged:\n%s",
			pc.Language, text, l.HTML),
		Schema: llm.Object(map[string]any{"text": llm.String()}),
	}, &out)
	if err == nil {
		return strings.TrimSpace(out.Text)
	}
	s.log.Debug("anchor weave failed, appending", "page_id", pc.PageID, "error", err)
	return strings.TrimSpace(text) + " " + l.HTML
}

// HeadLinks weaves the parent page anchor and the main source link into the
// first HEAD_CONTENT paragraph. It returns the keywords those links use so
// reference markers avoid them.
func (s *Service) HeadLinks(ctx context.Context, st *structure.Structure, pc *PageContext) []string {
	var links []Link
	if pc.Parent != nil {
		links = append(links, RelationLink(*pc.Parent))
	}
	if pc.Source != nil && pc.Source.Link != "" {
		kw := pc.Source.Keyword
		if kw == "" {
			kw = pc.Keyword
		}
		links = append(links, SourceLink(pc.Source.Link, kw))
	}
	banned := make([]string, 0, len(links))
	for _, l := range links {
		banned = append(banned, l.Keyword)
	}

	head := st.Get(structure.TagHeadContent)
	if head == nil || !head.Processed || len(links) == 0 {
		return banned
	}
	var para *structure.Element
	for _, c := range head.Children {
		if c.Tag == structure.TagP {
			para = c
			break
		}
	}
	if para == nil {
		return banned
	}
	text := para.Text()
	for _, l := range links {
		text = s.Weave(ctx, text, l, pc)
	}
	para.Content = text
	return banned
}

// BodyLinks weaves sibling and child page anchors into section paragraphs,
// one anchor per section in turn.
func (s *Service) BodyLinks(ctx context.Context, sections []*structure.Element, pc *PageContext) {
	var targets []*structure.Element
	for _, h := range sections {
		if !h.Processed {
			continue
		}
		for _, c := range h.Children {
			if c.Tag == structure.TagP {
				targets = append(targets, c)
				break
			}
		}
	}
	if len(targets) == 0 {
		return
	}
	rels := append(append([]Relation(nil), pc.Children...), pc.Neighbours...)
	for i, r := range rels {
		if ctx.Err() != nil {
			return
		}
		p := targets[i%len(targets)]
		p.Content = s.Weave(ctx, p.Text(), RelationLink(r), pc)
	}
}
