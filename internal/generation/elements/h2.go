package elements

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
)

const MaxSections = 10

var newID = uuid.New

// InjectionTags lists, per pipeline, the elements that H2 sections are
// distributed behind.
var (
	InformationalInjections = []string{
		structure.TagImg, structure.TagQuiz, structure.TagGraph, structure.TagFAQ,
		structure.TagTable, structure.TagFacts, structure.TagNewsBubble, structure.TagCTA,
	}
	NavigationalInjections = []string{
		structure.TagImgFirst, structure.TagImgSecond, structure.TagImgThird,
		structure.TagTableFirst, structure.TagTableSecond,
	}
)

// SectionCount clamps the requested number of H2 sections to
// [max(injections, 1), MaxSections].
func SectionCount(requested, injections int) int {
	lo := max(injections, 1)
	n := max(requested, lo)
	return min(n, MaxSections)
}

// PlaceSections inserts n empty H2 placeholders into st. Sections are dealt
// round-robin over the injection elements present, each group following its
// element in document order; without any they follow HEAD_CONTENT (or H1, or
// the end). Top-level positions are renumbered afterwards.
func PlaceSections(st *structure.Structure, n int, injections []string) []*structure.Element {
	var anchors []*structure.Element
	for _, e := range st.Elements {
		for _, tag := range injections {
			if e.Tag == tag {
				anchors = append(anchors, e)
				break
			}
		}
	}
	if len(anchors) == 0 {
		if a := st.Get(structure.TagHeadContent); a != nil {
			anchors = []*structure.Element{a}
		} else if a := st.Get(structure.TagH1); a != nil {
			anchors = []*structure.Element{a}
		}
	}

	counts := make([]int, max(len(anchors), 1))
	for i := 0; i < n; i++ {
		counts[i%len(counts)]++
	}

	sections := make([]*structure.Element, 0, n)
	mk := func() *structure.Element {
		h := &structure.Element{ID: newID(), Tag: structure.TagH2}
		sections = append(sections, h)
		return h
	}

	out := make([]*structure.Element, 0, len(st.Elements)+n)
	if len(anchors) == 0 {
		out = append(out, st.Elements...)
		for i := 0; i < n; i++ {
			out = append(out, mk())
		}
	} else {
		next := 0
		for _, e := range st.Elements {
			out = append(out, e)
			if next < len(anchors) && e == anchors[next] {
				for i := 0; i < counts[next]; i++ {
					out = append(out, mk())
				}
				next++
			}
		}
	}
	st.Elements = out
	for i, e := range st.Elements {
		e.Position = i
		for _, c := range e.Children {
			c.Walk(func(el *structure.Element) { el.Position = i })
		}
	}
	return sections
}

type outlineOut struct {
	Sections []struct {
		Header      string `json:"header"`
		ShortHeader string `json:"short_header"`
	} `json:"sections"`
	want int
}

func (o *outlineOut) Validate() error {
	if len(o.Sections) < o.want {
		return fmt.Errorf("outline has %d sections, want %d", len(o.Sections), o.want)
	}
	for _, s := range o.Sections {
		if strings.TrimSpace(s.Header) == "" {
			return errors.New("empty section header")
		}
	}
	return nil
}

// FillSections writes the outline and then every section body in parallel.
// onSection is called after each section settles, filled or not.
func (s *Service) FillSections(ctx context.Context, sections []*structure.Element, pc *PageContext, onSection func()) error {
	if len(sections) == 0 {
		return nil
	}
	out := outlineOut{want: len(sections)}
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "h2_outline",
		System: "You outline web pages.",
		User: pc.describe() + fmt.Sprintf("\nOutline the body with exactly %d H2 sections. "+
			"Give each a full header and a short header for the table of contents.", len(sections)),
		Schema: llm.Object(map[string]any{"sections": llm.Array(llm.Object(map[string]any{
			"header":       llm.String(),
			"short_header": llm.String(),
		}))}),
	}, &out)
	if err != nil {
		return err
	}

	headers := make([]string, len(sections))
	for i, h := range sections {
		o := out.Sections[i]
		short := strings.TrimSpace(o.ShortHeader)
		if short == "" {
			short = strings.TrimSpace(o.Header)
		}
		h.Content = strings.TrimSpace(o.Header)
		h.SetSetting("content", short)
		headers[i] = h.Text()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range sections {
		i, h := i, h
		Go(g, func() error {
			s.retry(gctx, h, pc, func(s *Service, ctx context.Context, e *structure.Element, pc *PageContext) error {
				return s.fillSection(ctx, e, pc, headers, i)
			})
			if onSection != nil {
				onSection()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("section filler failed", "page_id", pc.PageID, "error", err)
	}
	return ctx.Err()
}

func (s *Service) fillSection(ctx context.Context, e *structure.Element, pc *PageContext, headers []string, idx int) error {
	words := pc.WordsPerSection
	if words <= 0 {
		words = 200
	}
	t, err := s.text(ctx, "h2_text", fmt.Sprintf(
		"Page outline: %s\nWrite section %d, %q, in markdown: about %d words, paragraphs and lists only, no headings, no links.",
		strings.Join(headers, " | "), idx+1, e.Text(), words), pc)
	if err != nil {
		return err
	}
	paras, err := Paragraphs(t)
	if err != nil {
		return err
	}
	if len(paras) == 0 {
		return nil
	}
	e.Children = paragraphElements(paras, e.Position)
	e.Processed = true
	return nil
}

// SectionParagraphs returns the paragraph children of processed sections.
func SectionParagraphs(sections []*structure.Element) []*structure.Element {
	var out []*structure.Element
	for _, h := range sections {
		if !h.Processed {
			continue
		}
		for _, c := range h.Children {
			if c.Tag == structure.TagP {
				out = append(out, c)
			}
		}
	}
	return out
}

// BodyText is the plain text of all processed sections.
func BodyText(sections []*structure.Element) string {
	var b strings.Builder
	for _, h := range sections {
		if !h.Processed {
			continue
		}
		b.WriteString(h.Text())
		b.WriteString("\n")
		for _, c := range h.Children {
			b.WriteString(PlainText(c.Text()))
			b.WriteString("\n")
		}
	}
	return b.String()
}
