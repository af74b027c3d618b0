package elements

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/clusterforge-backend/internal/generation/llm/llmtest"
)

func TestParagraphs(t *testing.T) {
	paras, err := Paragraphs("First *part*.\n\nSecond [link](https://example.com) here.\n\n- a\n- b")
	require.NoError(t, err)
	require.Len(t, paras, 3)

	assert.Equal(t, "First <em>part</em>.", paras[0])
	assert.Equal(t, "Second link here.", paras[1])
	assert.Contains(t, paras[2], "<ul>")
	assert.Contains(t, paras[2], "<li>a</li>")
	assert.NotContains(t, paras[1], "href")
}

func TestParagraphsEmpty(t *testing.T) {
	paras, err := Paragraphs("   \n")
	require.NoError(t, err)
	assert.Empty(t, paras)
}

func TestStripLinksAndPlainText(t *testing.T) {
	in := `Go to <a href="https://x.test">the <b>shop</b></a> now.`
	assert.Equal(t, "Go to the <b>shop</b> now.", StripLinks(in))
	assert.Equal(t, "Go to the shop now.", PlainText(in))
}

func TestShrinkPNG(t *testing.T) {
	out, err := ShrinkPNG(llmtest.PNG(40, 20), 10)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 5, cfg.Height)

	out, err = ShrinkPNG(llmtest.PNG(8, 4), 10)
	require.NoError(t, err)
	cfg, err = png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Width)

	_, err = ShrinkPNG([]byte("not an image"), 10)
	assert.Error(t, err)
}

func TestMarkerSpot(t *testing.T) {
	text := `Coffee <a id="x">coffee beans</a> and coffee beans, roasted.`
	want := len(`Coffee <a id="x">coffee beans</a> and coffee beans`)
	assert.Equal(t, want, markerSpot(text, "Coffee Beans"))

	assert.Equal(t, -1, markerSpot("Decaffeinated options.", "caffeinated"))
	assert.Equal(t, -1, markerSpot("Two espressos are enough.", "espresso"))
	assert.Equal(t, len("I like espresso"), markerSpot("I like espresso", "espresso"))
	assert.Equal(t, -1, markerSpot(`See <ref fn_item_id="1">crema</ref> here.`, "crema"))
	assert.Equal(t, -1, markerSpot("anything", "  "))
}
