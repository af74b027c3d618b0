package elements

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
)

var simpleFillers = map[string]fillFunc{
	structure.TagTitle:           (*Service).fillTitle,
	structure.TagH1:              (*Service).fillH1,
	structure.TagMetaDescription: (*Service).fillMetaDescription,
	structure.TagMetaWords:       (*Service).fillMetaWords,
	structure.TagHeadContent:     (*Service).fillHeadContent,
	structure.TagQuiz:            (*Service).fillQuiz,
	structure.TagGraph:           (*Service).fillGraph,
	structure.TagFAQ:             (*Service).fillFAQ,
	structure.TagTable:           (*Service).fillTable,
	structure.TagTableFirst:      (*Service).fillTable,
	structure.TagTableSecond:     (*Service).fillTable,
	structure.TagFacts:           (*Service).fillFacts,
	structure.TagNewsBubble:      (*Service).fillNewsBubble,
	structure.TagFeatures:        (*Service).fillCards,
	structure.TagBenefits:        (*Service).fillCards,
	structure.TagGrid:            (*Service).fillCards,
	structure.TagCTA:             (*Service).fillCTA,
	structure.TagInnerCTA:        (*Service).fillInnerCTA,
}

type textOut struct {
	Text string `json:"text"`
}

func (o *textOut) Validate() error {
	if strings.TrimSpace(o.Text) == "" {
		return errors.New("empty text")
	}
	return nil
}

func (s *Service) text(ctx context.Context, name, instruction string, pc *PageContext) (string, error) {
	var out textOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   name,
		System: "You write web page content. Answer in the page language.",
		User:   pc.describe() + "\n" + instruction,
		Schema: llm.Object(map[string]any{"text": llm.String()}),
	}, &out)
	return strings.TrimSpace(out.Text), err
}

func (s *Service) fillTitle(ctx context.Context, e *structure.Element, pc *PageContext) error {
	t, err := s.text(ctx, "title", "Write the HTML <title> of the page, under 60 characters.", pc)
	if err != nil {
		return err
	}
	e.Content, e.Processed = t, true
	return nil
}

func (s *Service) fillH1(ctx context.Context, e *structure.Element, pc *PageContext) error {
	t, err := s.text(ctx, "h1", "Write the main H1 heading of the page.", pc)
	if err != nil {
		return err
	}
	e.Content, e.Processed = t, true
	return nil
}

func (s *Service) fillMetaDescription(ctx context.Context, e *structure.Element, pc *PageContext) error {
	t, err := s.text(ctx, "meta_description", "Write the meta description of the page, under 160 characters.", pc)
	if err != nil {
		return err
	}
	e.Content, e.Processed = t, true
	return nil
}

type wordsOut struct {
	Keywords []string `json:"keywords"`
}

func (s *Service) fillMetaWords(ctx context.Context, e *structure.Element, pc *PageContext) error {
	var out wordsOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "meta_words",
		System: "You write web page metadata.",
		User:   pc.describe() + "\nList up to 10 meta keywords for the page.",
		Schema: llm.Object(map[string]any{"keywords": llm.StringList()}),
	}, &out)
	if err != nil {
		return err
	}
	words := make([]string, 0, len(out.Keywords))
	for _, w := range out.Keywords {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil
	}
	e.Content, e.Processed = words, true
	return nil
}

// fillHeadContent writes the introduction as paragraph children.
func (s *Service) fillHeadContent(ctx context.Context, e *structure.Element, pc *PageContext) error {
	t, err := s.text(ctx, "head_content",
		"Write the introduction of the page in markdown, two or three short paragraphs, without headings or links.", pc)
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

func paragraphElements(paras []string, position int) []*structure.Element {
	out := make([]*structure.Element, 0, len(paras))
	for _, p := range paras {
		out = append(out, newChild(structure.TagP, position, p))
	}
	return out
}

type quizOut struct {
	Questions []struct {
		Question string   `json:"question"`
		Answers  []string `json:"answers"`
		Correct  int      `json:"correct"`
	} `json:"questions"`
}

func (o *quizOut) Validate() error {
	if len(o.Questions) == 0 {
		return errors.New("no questions")
	}
	for _, q := range o.Questions {
		if q.Correct < 0 || q.Correct >= len(q.Answers) {
			return fmt.Errorf("question %q: correct answer out of range", q.Question)
		}
	}
	return nil
}

func (s *Service) fillQuiz(ctx context.Context, e *structure.Element, pc *PageContext) error {
	var out quizOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "quiz",
		System: "You write short knowledge quizzes for web pages.",
		User:   pc.describe() + "\nWrite three multiple-choice questions. correct is the index of the right answer.",
		Schema: llm.Object(map[string]any{"questions": llm.Array(llm.Object(map[string]any{
			"question": llm.String(),
			"answers":  llm.StringList(),
			"correct":  llm.Integer(),
		}))}),
	}, &out)
	if err != nil {
		return err
	}
	e.Content, e.Processed = generic(out.Questions), true
	return nil
}

type graphOut struct {
	Title string `json:"title"`
	Items []struct {
		Label string `json:"label"`
		Value int    `json:"value"`
	} `json:"items"`
}

func (o *graphOut) Validate() error {
	if len(o.Items) < 2 {
		return errors.New("graph needs at least two items")
	}
	return nil
}

func (s *Service) fillGraph(ctx context.Context, e *structure.Element, pc *PageContext) error {
	variant := e.Setting("graphVariant")
	var out graphOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "graph",
		System: "You prepare data for charts on web pages.",
		User:   pc.describe() + fmt.Sprintf("\nPrepare a %s chart with a title and labelled integer values.", variant),
		Schema: llm.Object(map[string]any{
			"title": llm.String(),
			"items": llm.Array(llm.Object(map[string]any{"label": llm.String(), "value": llm.Integer()})),
		}),
	}, &out)
	if err != nil {
		return err
	}
	e.Content, e.Processed = generic(out), true
	return nil
}

type faqOut struct {
	Items []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"items"`
}

func (o *faqOut) Validate() error {
	if len(o.Items) == 0 {
		return errors.New("empty faq")
	}
	return nil
}

func (s *Service) fillFAQ(ctx context.Context, e *structure.Element, pc *PageContext) error {
	var out faqOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "faq",
		System: "You write FAQ sections for web pages.",
		User:   pc.describe() + "\nWrite four to six frequently asked questions with concise answers.",
		Schema: llm.Object(map[string]any{"items": llm.Array(llm.Object(map[string]any{
			"question": llm.String(),
			"answer":   llm.String(),
		}))}),
	}, &out)
	if err != nil {
		return err
	}
	e.Content, e.Processed = generic(out.Items), true
	return nil
}

type tableOut struct {
	Title   string     `json:"title"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

func (o *tableOut) Validate() error {
	if len(o.Headers) == 0 || len(o.Rows) == 0 {
		return errors.New("empty table")
	}
	for i, r := range o.Rows {
		if len(r) != len(o.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(r), len(o.Headers))
		}
	}
	return nil
}

func (s *Service) fillTable(ctx context.Context, e *structure.Element, pc *PageContext) error {
	var out tableOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "table",
		System: "You prepare comparison tables for web pages.",
		User:   pc.describe() + fmt.Sprintf("\nPrepare a %s table with a title, headers and rows.", e.Setting("tableVariant")),
		Schema: llm.Object(map[string]any{
			"title":   llm.String(),
			"headers": llm.StringList(),
			"rows":    llm.Array(llm.StringList()),
		}),
	}, &out)
	if err != nil {
		return err
	}
	e.Content, e.Processed = generic(out), true
	return nil
}

type factsOut struct {
	Facts []string `json:"facts"`
}

func (o *factsOut) Validate() error {
	if len(o.Facts) == 0 {
		return errors.New("no facts")
	}
	return nil
}

func (s *Service) fillFacts(ctx context.Context, e *structure.Element, pc *PageContext) error {
	var out factsOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   "facts",
		System: "You collect short facts for web pages.",
		User:   pc.describe() + "\nList three to five short interesting facts.",
		Schema: llm.Object(map[string]any{"facts": llm.StringList()}),
	}, &out)
	if err != nil {
		return err
	}
	e.Content, e.Processed = out.Facts, true
	return nil
}

func (s *Service) fillNewsBubble(ctx context.Context, e *structure.Element, pc *PageContext) error {
	t, err := s.text(ctx, "news_bubble", "Write one short highlighted note about a recent development on the topic.", pc)
	if err != nil {
		return err
	}
	e.Content, e.Processed = t, true
	return nil
}

type cardsOut struct {
	Items []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"items"`
}

func (o *cardsOut) Validate() error {
	if len(o.Items) == 0 {
		return errors.New("no items")
	}
	return nil
}

// fillCards serves FEATURES, BENEFITS and GRID blocks of commercial pages.
func (s *Service) fillCards(ctx context.Context, e *structure.Element, pc *PageContext) error {
	var out cardsOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   strings.ToLower(e.Tag),
		System: "You write sales page blocks.",
		User:   pc.describe() + fmt.Sprintf("\nWrite the %s block: three to six items with a title and a one-sentence description.", strings.ToLower(e.Tag)),
		Schema: llm.Object(map[string]any{"items": llm.Array(llm.Object(map[string]any{
			"title":       llm.String(),
			"description": llm.String(),
		}))}),
	}, &out)
	if err != nil {
		return err
	}
	e.Content, e.Processed = generic(out.Items), true
	return nil
}

type ctaOut struct {
	Heading     string `json:"heading"`
	Description string `json:"description"`
	Button      string `json:"button"`
}

func (o *ctaOut) Validate() error {
	if strings.TrimSpace(o.Heading) == "" || strings.TrimSpace(o.Button) == "" {
		return errors.New("cta needs heading and button")
	}
	return nil
}

func (s *Service) cta(ctx context.Context, name string, pc *PageContext) (ctaOut, error) {
	var out ctaOut
	err := s.inv.Invoke(ctx, llm.Prompt{
		Name:   name,
		System: "You write call-to-action blocks.",
		User:   pc.describe() + "\nWrite a call to action: heading, one-sentence description and button label.",
		Schema: llm.Object(map[string]any{
			"heading":     llm.String(),
			"description": llm.String(),
			"button":      llm.String(),
		}),
	}, &out)
	return out, err
}

// fillCTA fills the text children; CTA_IMG waits for the image step.
func (s *Service) fillCTA(ctx context.Context, e *structure.Element, pc *PageContext) error {
	out, err := s.cta(ctx, "cta", pc)
	if err != nil {
		return err
	}
	for _, c := range e.Children {
		switch c.Tag {
		case structure.TagCTAHeadingText:
			c.Content, c.Processed = out.Heading, true
		case structure.TagCTADescriptionText:
			c.Content, c.Processed = out.Description, out.Description != ""
		case structure.TagCTAButton:
			c.Content, c.Processed = out.Button, true
		}
	}
	e.Processed = true
	return nil
}

func (s *Service) fillInnerCTA(ctx context.Context, e *structure.Element, pc *PageContext) error {
	out, err := s.cta(ctx, "inner_cta", pc)
	if err != nil {
		return err
	}
	for _, c := range e.Children {
		switch c.Tag {
		case structure.TagInnerCTAHeadingText:
			c.Content, c.Processed = out.Heading, true
		case structure.TagInnerCTAButton:
			c.Content, c.Processed = out.Button, true
		}
	}
	e.Processed = true
	return nil
}

func newChild(tag string, position int, content any) *structure.Element {
	return &structure.Element{ID: newID(), Tag: tag, Position: position, Content: content, Processed: true}
}
