package elements

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
)

const maxSummaryInput = 8000

type summaryOut struct {
	Summary string `json:"summary"`
}

func (o *summaryOut) Validate() error {
	if strings.TrimSpace(o.Summary) == "" {
		return errors.New("empty summary")
	}
	return nil
}

// Summarize condenses the body copy for the elements generated after it.
// On failure it falls back to the research notes or the topic.
func (s *Service) Summarize(ctx context.Context, body string, pc *PageContext) string {
	body = strings.TrimSpace(body)
	if body != "" {
		if len(body) > maxSummaryInput {
			body = strings.ToValidUTF8(body[:maxSummaryInput], "")
		}
		var out summaryOut
		err := s.inv.Invoke(ctx, llm.Prompt{
			Name:   "summary",
			System: "You summarise web pages.",
			User:   "Summarise the following page body in three sentences, in its language.\n\n" + body,
			Schema: llm.Object(map[string]any{"summary": llm.String()}),
		}, &out)
		if err == nil {
			return strings.TrimSpace(out.Summary)
		}
		s.log.Warn("summary failed", "page_id", pc.PageID, "error", err)
	}
	if pc.Research != "" {
		return pc.Research
	}
	return pc.Topic
}

type pageMetaOut struct {
	Title string `json:"title"`
	H1    string `json:"h1"`
}

func (o *pageMetaOut) Validate() error {
	if strings.TrimSpace(o.Title) == "" || strings.TrimSpace(o.H1) == "" {
		return errors.New("title and h1 required")
	}
	return nil
}

// UpdateByContext regenerates TITLE and H1 from the page summary. Elements
// keep their earlier content when the call fails.
func (s *Service) UpdateByContext(ctx context.Context, st *structure.Structure, pc *PageContext) {
	title, h1 := st.Get(structure.TagTitle), st.Get(structure.TagH1)
	if (title == nil && h1 == nil) || pc.Summary == "" {
		return
	}
	var out pageMetaOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "page_metadata",
		System: "You write web page titles.",
		User:   pc.describe() + "\nWrite the HTML title (under 60 characters) and the H1 heading matching the summary.",
		Schema: llm.Object(map[string]any{"title": llm.String(), "h1": llm.String()}),
	}, &out)
	if err != nil {
		s.log.Debug("metadata refresh failed", "page_id", pc.PageID, "error", err)
		return
	}
	if title != nil {
		title.Content, title.Processed = strings.TrimSpace(out.Title), true
	}
	if h1 != nil {
		h1.Content, h1.Processed = strings.TrimSpace(out.H1), true
	}
}

// BuildContentMenu lists the processed sections by their short headers.
func BuildContentMenu(e *structure.Element, sections []*structure.Element) {
	items := make([]any, 0, len(sections))
	for _, h := range sections {
		if !h.Processed {
			continue
		}
		label := h.Setting("content")
		if label == "" {
			label = h.Text()
		}
		items = append(items, map[string]any{"id": h.ID.String(), "text": label})
	}
	if len(items) == 0 {
		return
	}
	e.Content, e.Processed = items, true
}

// BuildRelatedPages renders parent, sibling and child anchors.
func BuildRelatedPages(e *structure.Element, pc *PageContext) {
	var upper []Relation
	if pc.Parent != nil {
		upper = []Relation{*pc.Parent}
	}
	groups := []struct {
		tag  string
		rels []Relation
	}{
		{structure.TagUpperRelation, upper},
		{structure.TagInnerRelation, pc.Neighbours},
		{structure.TagLowerRelation, pc.Children},
	}
	e.Children = nil
	for _, g := range groups {
		if len(g.rels) == 0 {
			continue
		}
		links := make([]any, 0, len(g.rels))
		for _, r := range g.rels {
			links = append(links, map[string]any{"id": r.ID.String(), "topic": r.Topic, "html": r.Anchor()})
		}
		e.Children = append(e.Children, newChild(g.tag, e.Position, links))
	}
	e.Processed = len(e.Children) > 0
}
