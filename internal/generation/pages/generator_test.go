package pages

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/generation/elements"
	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/llm/llmtest"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
	"github.com/yungbote/clusterforge-backend/internal/jobs/progress"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/platform/search"
)

type images struct {
	mu sync.Mutex
	n  int
}

func (i *images) Save(_ context.Context, key string, _ []byte) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.n++
	return "https://cdn.test/" + key, nil
}

type searcher struct{}

func (searcher) Search(_ context.Context, q, _, _ string) ([]search.Result, error) {
	return []search.Result{{Link: "https://source.test/" + strings.ReplaceAll(q, " ", "-")}}, nil
}

type allowAll struct{}

func (allowAll) Filter(_ context.Context, urls []string) []string { return urls }

func scriptedModel() *llmtest.Model {
	txt := func(s string) map[string]any { return map[string]any{"text": s} }
	return llmtest.New().
		Reply("title", txt("Arabica guide")).
		Reply("h1", txt("All about arabica")).
		Reply("head_content", txt("Arabica is a coffee species.")).
		Reply("h2_outline", map[string]any{"sections": []map[string]any{
			{"header": "Where it grows", "short_header": "Origins"},
			{"header": "How it tastes", "short_header": "Taste"},
			{"header": "Spare", "short_header": "Spare"},
		}}).
		Reply("h2_text", txt("Arabica beans grow high.\n\nThey like shade.")).
		Reply("summary", map[string]any{"summary": "Arabica grows high and tastes sweet."}).
		Reply("image_annotation", map[string]any{
			"image_annotation": "Arabica cherries",
			"prompt":           "arabica cherries on a branch",
			"image_alt_tag":    "arabica cherries",
		}).
		Reply("page_metadata", map[string]any{"title": "Arabica, the sweet bean", "h1": "Arabica coffee"}).
		Reply("reference_keywords", map[string]any{"keywords": []string{"Arabica beans"}}).
		On("backlink", func(context.Context, string, int) (any, error) { return nil, errors.New("no rewrite") })
}

func params(tags ...string) []cluster.ElementParam {
	out := make([]cluster.ElementParam, 0, len(tags))
	for i, t := range tags {
		out = append(out, cluster.ElementParam{Type: t, Position: i, Enabled: true})
	}
	return out
}

func newSvc(model *llmtest.Model) *elements.Service {
	return elements.NewService(elements.Deps{
		Invoker: llm.NewInvoker(model, 1, logger.Nop()),
		Images:  &images{},
		Search:  searcher{},
		Links:   allowAll{},
	}, elements.Config{}, logger.Nop())
}

func pageContext() *elements.PageContext {
	return &elements.PageContext{
		PageID:    uuid.New(),
		ClusterID: uuid.New(),
		OwnerID:   uuid.New(),
		Topic:     "Arabica",
		Keyword:   "coffee",
		Language:  "en",
		H2Count:   2,
		Parent:    &elements.Relation{ID: uuid.New(), Topic: "Coffee"},
	}
}

func tagsOf(els []*structure.Element) []string {
	out := make([]string, 0, len(els))
	for _, e := range els {
		out = append(out, e.Tag)
	}
	return out
}

func find(els []*structure.Element, tag string) *structure.Element {
	for _, e := range els {
		if e.Tag == tag {
			return e
		}
	}
	return nil
}

func TestInformationalPipeline(t *testing.T) {
	tpl, err := structure.Compile(params(
		structure.TagTitle, structure.TagH1, structure.TagHeadContent, structure.TagImg,
		structure.TagContentMenu, structure.TagReferences, structure.TagRelatedPages,
	), cluster.IntentInformational, nil)
	require.NoError(t, err)

	model := scriptedModel()
	rep := progress.NewReporter(uuid.New(), uuid.New(), progress.Options{}, logger.Nop())
	defer rep.Close()
	tr := rep.Page(10)

	res, err := NewInformational(newSvc(model), logger.Nop()).Generate(context.Background(), tpl, pageContext(), tr)
	require.NoError(t, err)
	require.True(t, res.Valid())

	assert.Equal(t, []string{
		structure.TagTitle, structure.TagH1, structure.TagHeadContent, structure.TagImg,
		structure.TagH2, structure.TagH2, structure.TagContentMenu, structure.TagReferences, structure.TagRelatedPages,
	}, tagsOf(res.Release))
	for i, e := range res.Release {
		assert.Equal(t, i, e.Position)
	}

	assert.Equal(t, "Arabica, the sweet bean", find(res.Release, structure.TagTitle).Text())
	img := find(res.Release, structure.TagImg)
	assert.True(t, strings.HasPrefix(img.Href, "https://cdn.test/"))

	refs := find(res.Release, structure.TagReferences)
	require.NotNil(t, refs)
	assert.Len(t, refs.Content, 1)
	body := find(res.Release, structure.TagH2).Children[0].Text()
	assert.Contains(t, body, `<ref fn_item_id="`)

	assert.Nil(t, find(res.Original, structure.TagReferences))
	assert.NotContains(t, find(res.Original, structure.TagH2).Children[0].Text(), "<ref")

	head := find(res.Release, structure.TagHeadContent).Children[0].Text()
	assert.Contains(t, head, `>Coffee</a>`)

	assert.InDelta(t, 10, rep.Value(), 1e-9)
	assert.Equal(t, 1, model.Calls("summary"))
	assert.Equal(t, 2, model.Calls("h2_text"))
}

func TestCommercialPipeline(t *testing.T) {
	tpl, err := structure.Compile(params(
		structure.TagTitle, structure.TagH1, structure.TagHeadContent,
		structure.TagCTA, structure.TagCTAHeadingText, structure.TagCTAButton, structure.TagCTAImg, structure.TagCTAFigcaption,
		structure.TagInnerCTA, structure.TagInnerCTAButton,
		structure.TagReferences, structure.TagRelatedPages,
	), cluster.IntentCommercial, nil)
	require.NoError(t, err)

	cta := map[string]any{"heading": "Taste arabica", "description": "Order a sample bag.", "button": "Order now"}
	model := scriptedModel().Reply("cta", cta).Reply("inner_cta", cta)
	rep := progress.NewReporter(uuid.New(), uuid.New(), progress.Options{}, logger.Nop())
	defer rep.Close()

	res, err := NewCommercial(newSvc(model), logger.Nop()).Generate(context.Background(), tpl, pageContext(), rep.Page(10))
	require.NoError(t, err)
	require.True(t, res.Valid())

	assert.Equal(t, []string{
		structure.TagTitle, structure.TagH1, structure.TagHeadContent, structure.TagCTA,
		structure.TagH2, structure.TagH2, structure.TagInnerCTA, structure.TagRelatedPages,
	}, tagsOf(res.Release))

	block := find(res.Release, structure.TagCTA)
	require.NotNil(t, block)
	assert.Equal(t, "Taste arabica", block.Child(structure.TagCTAHeadingText).Text())
	assert.Equal(t, "Order now", block.Child(structure.TagCTAButton).Text())
	img := block.Child(structure.TagCTAImg)
	require.NotNil(t, img)
	assert.True(t, strings.HasPrefix(img.Href, "https://cdn.test/"))
	assert.Equal(t, "arabica cherries", block.Child(structure.TagCTAFigcaption).Text())

	inner := find(res.Release, structure.TagInnerCTA)
	require.NotNil(t, inner)
	assert.Equal(t, "Order now", inner.Child(structure.TagInnerCTAButton).Text())

	assert.Equal(t, "Arabica, the sweet bean", find(res.Release, structure.TagTitle).Text())
	assert.Contains(t, find(res.Release, structure.TagHeadContent).Children[0].Text(), `>Coffee</a>`)
	assert.Zero(t, model.Calls("reference_keywords"))
	assert.Equal(t, 2, model.Calls("h2_text"))
	assert.InDelta(t, 10, rep.Value(), 1e-9)
}

func TestSummaryPrecedesImagesAndMetadata(t *testing.T) {
	tpl, err := structure.Compile(params(
		structure.TagTitle, structure.TagH1, structure.TagHeadContent, structure.TagImg,
	), cluster.IntentInformational, nil)
	require.NoError(t, err)

	const summary = "Arabica grows high and tastes sweet."
	var (
		mu    sync.Mutex
		order []string
		users = map[string]string{}
	)
	record := func(name string, reply any) llmtest.Responder {
		return func(_ context.Context, user string, _ int) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			users[name] = user
			return reply, nil
		}
	}
	model := scriptedModel().
		On("summary", record("summary", map[string]any{"summary": summary})).
		On("image_annotation", record("image_annotation", map[string]any{
			"image_annotation": "Arabica cherries",
			"prompt":           "arabica cherries on a branch",
			"image_alt_tag":    "arabica cherries",
		})).
		On("page_metadata", record("page_metadata", map[string]any{"title": "Arabica, the sweet bean", "h1": "Arabica coffee"}))

	res, err := NewInformational(newSvc(model), logger.Nop()).Generate(context.Background(), tpl, pageContext(), nil)
	require.NoError(t, err)
	require.NotNil(t, find(res.Release, structure.TagImg))

	require.Len(t, order, 3)
	assert.Equal(t, "summary", order[0])
	assert.ElementsMatch(t, []string{"image_annotation", "page_metadata"}, order[1:])
	assert.Contains(t, users["image_annotation"], "Page summary: "+summary)
	assert.Contains(t, users["page_metadata"], summary)
}

func TestPanickingImageFillerLeavesPageUsable(t *testing.T) {
	tpl, err := structure.Compile(params(
		structure.TagTitle, structure.TagH1, structure.TagHeadContent, structure.TagImg,
	), cluster.IntentInformational, nil)
	require.NoError(t, err)

	model := scriptedModel().On("image_annotation", func(context.Context, string, int) (any, error) {
		panic("decoder state corrupted")
	})
	res, err := NewInformational(newSvc(model), logger.Nop()).Generate(context.Background(), tpl, pageContext(), nil)
	require.NoError(t, err)
	require.True(t, res.Valid())

	assert.Nil(t, find(res.Release, structure.TagImg))
	assert.NotNil(t, find(res.Release, structure.TagTitle))
	assert.Equal(t, elements.DefaultMaxAttempts, model.Calls("image_annotation"))
}

func TestNavigationalSkipsReferences(t *testing.T) {
	tpl, err := structure.Compile(params(
		structure.TagTitle, structure.TagH1, structure.TagHeadContent, structure.TagReferences,
	), cluster.IntentNavigational, nil)
	require.NoError(t, err)

	model := scriptedModel()
	pc := pageContext()
	pc.Parent = nil
	res, err := NewNavigational(newSvc(model), logger.Nop()).Generate(context.Background(), tpl, pc, nil)
	require.NoError(t, err)

	assert.Nil(t, find(res.Release, structure.TagReferences))
	assert.Zero(t, model.Calls("reference_keywords"))
	assert.Zero(t, model.Calls("backlink"))
	assert.Len(t, res.Release, len(res.Original))
}

func TestPipelineWithoutContentIsInvalid(t *testing.T) {
	tpl, err := structure.Compile(params(structure.TagTitle, structure.TagH1), cluster.IntentCommercial, nil)
	require.NoError(t, err)

	model := llmtest.New()
	model.Default = func(context.Context, string, int) (any, error) { return nil, errors.New("down") }
	res, err := NewCommercial(newSvc(model), logger.Nop()).Generate(context.Background(), tpl, pageContext(), nil)
	require.NoError(t, err)
	assert.False(t, res.Valid())
}

func TestPipelineStopsWhenCancelled(t *testing.T) {
	tpl, err := structure.Compile(params(structure.TagTitle), cluster.IntentInformational, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewInformational(newSvc(scriptedModel()), logger.Nop()).Generate(ctx, tpl, pageContext(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilterDropsUnprocessedSubtrees(t *testing.T) {
	els := []*structure.Element{
		{Tag: "B", Position: 2, Processed: true, Children: []*structure.Element{
			{Tag: "B1", Processed: true},
			{Tag: "B2"},
		}},
		{Tag: "A", Position: 1, Processed: true},
		{Tag: "C", Position: 0, Children: []*structure.Element{{Tag: "C1", Processed: true}}},
	}
	out := Filter(els)
	assert.Equal(t, []string{"A", "B"}, tagsOf(out))
	assert.Equal(t, []string{"B1"}, tagsOf(out[1].Children))
	assert.Len(t, els[0].Children, 2)
}

func TestSetFor(t *testing.T) {
	set := NewSet(newSvc(llmtest.New()), logger.Nop())
	for _, intent := range cluster.Intents {
		g, err := set.For(intent)
		require.NoError(t, err)
		assert.Equal(t, intent, g.Intent())
	}
	_, err := set.For("transactional")
	assert.Error(t, err)
}
