package structure

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
)

func tags(s *Structure) []string {
	out := make([]string, 0, len(s.Elements))
	for _, e := range s.Elements {
		out = append(out, e.Tag)
	}
	return out
}

func param(tag string, pos int, enabled bool) cluster.ElementParam {
	return cluster.ElementParam{Type: tag, Position: pos, Enabled: enabled}
}

func TestCompileInformationalPreset(t *testing.T) {
	s, err := Compile(nil, cluster.IntentInformational, &cluster.Author{Name: "Ada"})
	require.NoError(t, err)

	assert.Equal(t, TagTitle, s.Elements[0].Tag)
	assert.False(t, s.Has(TagMetaBacklink))
	assert.False(t, s.Has(TagCTA))
	assert.Nil(t, s.Find(TagCTAButton))

	contacts := s.Get(TagContacts)
	require.NotNil(t, contacts)
	assert.Len(t, contacts.Children, 4)
	assert.False(t, s.Has(TagContactEmail), "grouped children must not stay top-level")

	author := s.Get(TagAuthor)
	require.NotNil(t, author)
	assert.True(t, author.Processed)

	assert.Equal(t, "doughnut", s.Get(TagGraph).Setting("graphVariant"))
	for i := 1; i < len(s.Elements); i++ {
		assert.LessOrEqual(t, s.Elements[i-1].Position, s.Elements[i].Position)
	}
}

func TestCompileDropsAuthorWithoutSettings(t *testing.T) {
	s, err := Compile(nil, cluster.IntentNavigational, nil)
	require.NoError(t, err)
	assert.False(t, s.Has(TagAuthor))
	assert.True(t, s.Has(TagImgFirst))
}

func TestCompileIsDeterministic(t *testing.T) {
	for _, intent := range cluster.Intents {
		a, err := Compile(nil, intent, nil)
		require.NoError(t, err)
		b, err := Compile(nil, intent, nil)
		require.NoError(t, err)
		assert.Equal(t, a, b, intent)
	}
}

func TestCompileGroupFailsClosed(t *testing.T) {
	params := []cluster.ElementParam{
		param(TagTitle, 0, true),
		param(TagCTA, 1, true),
		param(TagCTAHeadingText, 1, true),
		param(TagCTADescriptionText, 1, true),
		param(TagCTAButton, 1, false),
		param(TagH1, 2, true),
	}
	s, err := Compile(params, cluster.IntentInformational, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{TagTitle, TagH1}, tags(s))
	assert.Nil(t, s.Find(TagCTAHeadingText))
}

func TestCompileGroupsChildrenUnderParent(t *testing.T) {
	params := []cluster.ElementParam{
		param(TagCTAButton, 5, true),
		param(TagCTA, 5, true),
		param(TagCTAHeadingText, 5, true),
		param(TagTitle, 0, true),
	}
	s, err := Compile(params, cluster.IntentInformational, nil)
	require.NoError(t, err)
	require.Equal(t, []string{TagTitle, TagCTA}, tags(s))
	cta := s.Get(TagCTA)
	assert.Len(t, cta.Children, 2)
	assert.NotNil(t, cta.Child(TagCTAButton))
}

func TestCompileDropsOrphanChildren(t *testing.T) {
	params := []cluster.ElementParam{
		param(TagTitle, 0, true),
		param(TagContactEmail, 1, true),
	}
	s, err := Compile(params, cluster.IntentInformational, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{TagTitle}, tags(s))
}

func TestCompileInnerCTADependsOnCTAButton(t *testing.T) {
	inner := []cluster.ElementParam{
		param(TagInnerCTA, 3, true),
		param(TagInnerCTAHeadingText, 3, true),
		param(TagInnerCTAButton, 3, true),
	}
	s, err := Compile(append([]cluster.ElementParam{param(TagTitle, 0, true)}, inner...), cluster.IntentCommercial, nil)
	require.NoError(t, err)
	assert.False(t, s.Has(TagInnerCTA))

	withCTA := append([]cluster.ElementParam{
		param(TagCTA, 1, true),
		param(TagCTAHeadingText, 1, true),
		param(TagCTAButton, 1, true),
	}, inner...)
	s, err = Compile(withCTA, cluster.IntentCommercial, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{TagCTA, TagInnerCTA}, tags(s))
}

func TestCompileRejectsBadInput(t *testing.T) {
	_, err := Compile(nil, cluster.Intent("transactional"), nil)
	assert.ErrorIs(t, err, ErrCompile)

	_, err = Compile([]cluster.ElementParam{param(TagTitle, 0, true), param("title", 1, false)}, cluster.IntentCommercial, nil)
	assert.ErrorIs(t, err, ErrCompile)
}

func TestInstantiateCopiesTemplate(t *testing.T) {
	tmpl, err := Compile(nil, cluster.IntentInformational, nil)
	require.NoError(t, err)

	a := tmpl.Instantiate()
	b := tmpl.Instantiate()
	a.Get(TagGraph).SetSetting("graphVariant", "bar")
	a.Get(TagContacts).Children[0].Content = "changed"

	assert.Equal(t, "doughnut", tmpl.Get(TagGraph).Setting("graphVariant"))
	assert.Equal(t, "doughnut", b.Get(TagGraph).Setting("graphVariant"))
	assert.Nil(t, b.Get(TagContacts).Children[0].Content)

	ids := map[uuid.UUID]bool{}
	for _, e := range a.Elements {
		e.Walk(func(el *Element) {
			assert.NotEqual(t, uuid.Nil, el.ID)
			assert.False(t, ids[el.ID])
			ids[el.ID] = true
		})
	}
	assert.Equal(t, uuid.Nil, tmpl.Elements[0].ID)
}
