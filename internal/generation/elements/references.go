package elements

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
)

// Markup that reference markers must never land inside.
var bannedSpans = regexp.MustCompile(`(?is)<a\b[^>]*>.*?</a>|<ref\b[^>]*>.*?</ref>|<[^>]+>`)

type refKeywordsOut struct {
	Keywords []string `json:"keywords"`
}

func (o *refKeywordsOut) Validate() error {
	if len(o.Keywords) == 0 {
		return errors.New("no reference keywords")
	}
	return nil
}

type reference struct {
	keyword string
	href    string
	id      uuid.UUID
}

// References picks phrases from the body copy, finds a reachable source for
// each and marks its first occurrence with a numbered footnote. The REFERENCES
// element lists the sources in marker order. banned keywords are skipped.
func (s *Service) References(ctx context.Context, st *structure.Structure, sections []*structure.Element, pc *PageContext, banned []string) {
	e := st.Get(structure.TagReferences)
	if e == nil {
		return
	}
	if s.search == nil || s.links == nil {
		s.log.Debug("references skipped, no search configured", "page_id", pc.PageID)
		return
	}
	body := BodyText(sections)
	if strings.TrimSpace(body) == "" {
		return
	}

	keywords, err := s.referenceKeywords(ctx, body, pc, banned)
	if err != nil {
		s.log.Warn("reference keywords failed", "page_id", pc.PageID, "error", err)
		return
	}

	found := make([]*reference, len(keywords))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, kw := range keywords {
		i, kw := i, kw
		Go(g, func() error {
			found[i] = s.lookup(gctx, kw, pc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("reference lookup failed", "page_id", pc.PageID, "error", err)
	}

	paras := SectionParagraphs(sections)
	items := make([]any, 0, len(found))
	for _, ref := range found {
		if ref == nil {
			continue
		}
		n := len(items) + 1
		marker := fmt.Sprintf(`<ref fn_item_id="%s">%d</ref>`, ref.id, n)
		if !injectMarker(paras, ref.keyword, marker) {
			continue
		}
		items = append(items, map[string]any{
			"id":      ref.id.String(),
			"href":    ref.href,
			"content": ref.keyword,
		})
	}
	if len(items) == 0 {
		return
	}
	e.Content, e.Processed = items, true
}

func (s *Service) referenceKeywords(ctx context.Context, body string, pc *PageContext, banned []string) ([]string, error) {
	if len(body) > maxSummaryInput {
		body = strings.ToValidUTF8(body[:maxSummaryInput], "")
	}
	var out refKeywordsOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "reference_keywords",
		System: "You pick phrases in an article that deserve a cited source.",
		User: fmt.Sprintf("Language: %s\nList up to %d short phrases copied verbatim from the text below that state facts worth citing.\n\n%s",
			pc.Language, s.cfg.MaxReferences, body),
		Schema: llm.Object(map[string]any{"keywords": llm.StringList()}),
	}, &out)
	if err != nil {
		return nil, err
	}
	fold := cases.Fold()
	skip := make(map[string]struct{}, len(banned))
	for _, b := range banned {
		skip[fold.String(strings.TrimSpace(b))] = struct{}{}
	}
	var keywords []string
	for _, kw := range out.Keywords {
		kw = strings.TrimSpace(kw)
		key := fold.String(kw)
		if kw == "" {
			continue
		}
		if _, ok := skip[key]; ok {
			continue
		}
		skip[key] = struct{}{}
		keywords = append(keywords, kw)
		if len(keywords) == s.cfg.MaxReferences {
			break
		}
	}
	return keywords, nil
}

func (s *Service) lookup(ctx context.Context, keyword string, pc *PageContext) *reference {
	results, err := s.search.Search(ctx, keyword, pc.Language, pc.Country)
	if err != nil {
		s.log.Debug("reference search failed", "keyword", keyword, "error", err)
		return nil
	}
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.Link)
	}
	valid := s.links.Filter(ctx, urls)
	if len(valid) == 0 {
		return nil
	}
	return &reference{keyword: keyword, href: valid[0], id: newID()}
}

// injectMarker places marker right after the first whole-word occurrence of
// keyword in paras, outside of tags, links and existing markers.
func injectMarker(paras []*structure.Element, keyword, marker string) bool {
	for _, p := range paras {
		text := p.Text()
		if at := markerSpot(text, keyword); at >= 0 {
			p.Content = text[:at] + marker + text[at:]
			return true
		}
	}
	return false
}

// markerSpot returns the byte offset just past the first acceptable match of
// keyword in text, or -1. A match must not touch a letter or digit on its
// left and must be followed by punctuation, a space or the end of text.
func markerSpot(text, keyword string) int {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return -1
	}
	spans := bannedSpans.FindAllStringIndex(text, -1)
	inSpan := func(from, to int) bool {
		for _, sp := range spans {
			if from < sp[1] && to > sp[0] {
				return true
			}
		}
		return false
	}
	pattern, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(keyword))
	if err != nil {
		return -1
	}
	for _, m := range pattern.FindAllStringIndex(text, -1) {
		from, to := m[0], m[1]
		if inSpan(from, to) {
			continue
		}
		if from > 0 {
			r, _ := utf8.DecodeLastRuneInString(text[:from])
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				continue
			}
		}
		if to < len(text) && !strings.ContainsRune(".,!? ", rune(text[to])) {
			continue
		}
		return to
	}
	return -1
}
