package topictree

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/llm/llmtest"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

func newBuilder(model *llmtest.Model) *Builder {
	return NewBuilder(llm.NewInvoker(model, 1, logger.Nop()), logger.Nop())
}

func mindmap(s string) map[string]any { return map[string]any{"mindmap": s} }

func texts(t *Tree) []string {
	var out []string
	for _, n := range t.Nodes() {
		out = append(out, n.Text)
	}
	return out
}

func TestBuildSingleTopicIsRootOnly(t *testing.T) {
	model := llmtest.New().Reply("cluster_title", map[string]any{"title": "Espresso at home"})
	tree, err := newBuilder(model).Build(context.Background(), Request{Keyword: "espresso", Count: 1, Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, 0, tree.Depth())
	assert.Empty(t, tree.Node(tree.Root).Children)
	assert.Zero(t, model.Calls("mindmap"))
}

func TestBuildFallsBackToKeywordTitle(t *testing.T) {
	model := llmtest.New().On("cluster_title", func(context.Context, string, int) (any, error) {
		return nil, errors.New("upstream down")
	})
	tree, err := newBuilder(model).Build(context.Background(), Request{Keyword: "espresso", Count: 1, Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "Espresso", tree.Node(tree.Root).Text)
}

func TestBuildSmallTreeIsFlat(t *testing.T) {
	model := llmtest.New().
		Reply("cluster_title", map[string]any{"title": "Coffee guide"}).
		Reply("mindmap", mindmap(`{"coffee": {"Beans": {"Arabica": null, "Robusta": null}, "Brewing": null}}`))

	tree, err := newBuilder(model).Build(context.Background(), Request{Keyword: "coffee", Count: 4, Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, 4, tree.Len())
	assert.Equal(t, 1, tree.Depth())
	assert.Equal(t, []string{"Coffee", "Beans", "Brewing", "Arabica"}, texts(tree))
	for _, n := range tree.Nodes() {
		if n.ID == tree.Root {
			continue
		}
		require.NotNil(t, n.ParentID)
		assert.Equal(t, tree.Root, *n.ParentID)
		assert.Len(t, n.Neighbours, 2)
	}
}

func TestBuildLargeTreeHasNoSingleChildBranches(t *testing.T) {
	model := llmtest.New().
		Reply("cluster_title", map[string]any{"title": "Coffee guide"}).
		Reply("mindmap", mindmap(`{"Coffee": {"Beans": ["Arabica", "Robusta", "Liberica"], "Brewing": ["Pour over"], "Gear": ["Grinders", "Kettles", "Scales"]}}`))

	tree, err := newBuilder(model).Build(context.Background(), Request{Keyword: "coffee", Count: 10, Language: "en"})
	require.NoError(t, err)

	require.Equal(t, 10, tree.Len())
	assert.Equal(t, 2, tree.Depth())
	for _, n := range tree.Nodes() {
		assert.NotEqual(t, 1, len(n.Children), "node %q has a single child", n.Text)
	}
	pour := findNode(t, tree, "Pour over")
	assert.Equal(t, tree.Root, *pour.ParentID)

	for i, n := range tree.Nodes() {
		assert.Equal(t, i, n.Position)
	}
}

func TestBuildSkipsDuplicatesAndTopsUp(t *testing.T) {
	model := llmtest.New().
		Reply("cluster_title", map[string]any{"title": "Coffee guide"}).
		Reply("mindmap", mindmap(`{"Coffee": {"Beans": null, "beans!": null}}`)).
		Reply("subtopics", map[string]any{"topics": []string{"Brewing", "BEANS", "Roasting", "Storage"}})

	tree, err := newBuilder(model).Build(context.Background(), Request{Keyword: "coffee", Count: 4, Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Coffee", "Beans", "Brewing", "Roasting"}, texts(tree))
	assert.Equal(t, 1, model.Calls("subtopics"))
}

func TestBuildFailsWhenTopUpFallsShort(t *testing.T) {
	model := llmtest.New().
		Reply("cluster_title", map[string]any{"title": "Coffee guide"}).
		Reply("mindmap", mindmap(`{"Coffee": {"Beans": null}}`)).
		Reply("subtopics", map[string]any{"topics": []string{"beans"}})

	_, err := newBuilder(model).Build(context.Background(), Request{Keyword: "coffee", Count: 5, Language: "en"})
	assert.ErrorIs(t, err, ErrStructureGenerationFailed)
}

func TestBuildRetriesUnparsableMindmapOnce(t *testing.T) {
	model := llmtest.New().
		Reply("cluster_title", map[string]any{"title": "Coffee guide"}).
		On("mindmap", func(_ context.Context, _ string, call int) (any, error) {
			if call == 1 {
				return mindmap(""), nil
			}
			return mindmap(`{"Beans": null, "Brewing": null}`), nil
		})

	tree, err := newBuilder(model).Build(context.Background(), Request{Keyword: "coffee", Count: 3, Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Coffee guide", "Beans", "Brewing"}, texts(tree))
	assert.Equal(t, 2, model.Calls("mindmap"))
}

func TestBuildGivesUpAfterSecondUnparsableMindmap(t *testing.T) {
	model := llmtest.New().
		Reply("cluster_title", map[string]any{"title": "Coffee guide"}).
		Reply("mindmap", mindmap("just some prose"))

	_, err := newBuilder(model).Build(context.Background(), Request{Keyword: "coffee", Count: 3, Language: "en"})
	assert.ErrorIs(t, err, ErrStructureGenerationFailed)
	assert.Equal(t, 2, model.Calls("mindmap"))
	assert.Zero(t, model.Calls("subtopics"))
}

func TestBuildRejectsInvalidRequest(t *testing.T) {
	b := newBuilder(llmtest.New())
	_, err := b.Build(context.Background(), Request{Keyword: "coffee", Count: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = b.Build(context.Background(), Request{Keyword: " ", Count: 2})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestProfileDefaultsOnFailure(t *testing.T) {
	model := llmtest.New().On("page_profile", func(context.Context, string, int) (any, error) {
		return nil, errors.New("boom")
	})
	p := NewProfiler(llm.NewInvoker(model, 1, logger.Nop()), logger.Nop())
	prof := p.Profile(context.Background(), Request{Keyword: "coffee"}, "Beans")
	assert.Equal(t, cluster.IntentInformational, prof.SearchIntent)
	assert.Equal(t, []string{"Beans"}, prof.Keywords)
	assert.Equal(t, DefaultH2Count, prof.H2Count)
}

func TestProfileNormalisesOutput(t *testing.T) {
	model := llmtest.New().Reply("page_profile", map[string]any{
		"search_intent":     "Commercial",
		"category":          "shop",
		"keywords":          []string{"buy beans", "Buy Beans", " ", "arabica"},
		"h2_count":          40,
		"words_per_section": 150,
		"summary":           "Where to buy.",
	})
	p := NewProfiler(llm.NewInvoker(model, 1, logger.Nop()), logger.Nop())
	prof := p.Profile(context.Background(), Request{Keyword: "coffee"}, "Beans")
	assert.Equal(t, cluster.IntentCommercial, prof.SearchIntent)
	assert.Equal(t, []string{"buy beans", "arabica"}, prof.Keywords)
	assert.Equal(t, 10, prof.H2Count)
	assert.Equal(t, 150, prof.WordsPerSection)
}

func findNode(t *testing.T, tree *Tree, text string) *Node {
	t.Helper()
	for _, n := range tree.Nodes() {
		if n.Text == text {
			return n
		}
	}
	t.Fatalf("node %q not found", text)
	return nil
}
