package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/llm/llmtest"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type titleOut struct {
	Title string `json:"title"`
}

func (t *titleOut) Validate() error {
	if t.Title == "" {
		return errors.New("empty title")
	}
	return nil
}

func prompt() llm.Prompt {
	return llm.Prompt{Name: "title", User: "u", Schema: llm.Object(map[string]any{"title": llm.String()})}
}

func TestInvokeRetriesValidationFailures(t *testing.T) {
	model := llmtest.New().On("title", func(_ context.Context, _ string, call int) (any, error) {
		if call < 3 {
			return map[string]any{"title": ""}, nil
		}
		return map[string]any{"title": "Done"}, nil
	})
	inv := llm.NewInvoker(model, 3, logger.Nop())

	var out titleOut
	require.NoError(t, inv.Invoke(context.Background(), prompt(), &out))
	assert.Equal(t, "Done", out.Title)
	assert.Equal(t, 3, model.Calls("title"))
}

func TestInvokeClassifiesErrors(t *testing.T) {
	bad := llmtest.New().Reply("title", "{not json")
	var out titleOut
	err := llm.NewInvoker(bad, 2, logger.Nop()).Invoke(context.Background(), prompt(), &out)
	assert.ErrorIs(t, err, llm.ErrValidation)
	assert.Equal(t, 2, bad.Calls("title"))

	failing := llmtest.New().On("title", func(context.Context, string, int) (any, error) {
		return nil, errors.New("boom")
	})
	err = llm.NewInvoker(failing, 2, logger.Nop()).Invoke(context.Background(), prompt(), &out)
	assert.ErrorIs(t, err, llm.ErrGeneration)
}

type taggedTitle struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

func (t *taggedTitle) Validate() error {
	if t.Title == "" {
		return errors.New("empty title")
	}
	return nil
}

func TestInvokeDoesNotLeakRejectedAttempts(t *testing.T) {
	model := llmtest.New().On("title", func(_ context.Context, _ string, call int) (any, error) {
		if call == 1 {
			return map[string]any{"title": "", "tags": []string{"stale"}}, nil
		}
		return map[string]any{"title": "Done"}, nil
	})
	var out taggedTitle
	require.NoError(t, llm.NewInvoker(model, 2, logger.Nop()).Invoke(context.Background(), prompt(), &out))
	assert.Equal(t, "Done", out.Title)
	assert.Nil(t, out.Tags)

	rejected := llmtest.New().Reply("title", map[string]any{"title": "", "tags": []string{"x"}})
	kept := taggedTitle{Title: "Kept"}
	err := llm.NewInvoker(rejected, 2, logger.Nop()).Invoke(context.Background(), prompt(), &kept)
	assert.ErrorIs(t, err, llm.ErrValidation)
	assert.Equal(t, taggedTitle{Title: "Kept"}, kept)
}

func TestInvokeRejectsNonPointerOutput(t *testing.T) {
	model := llmtest.New().Reply("title", map[string]any{"title": "Done"})
	err := llm.NewInvoker(model, 1, logger.Nop()).Invoke(context.Background(), prompt(), taggedTitle{})
	assert.ErrorIs(t, err, llm.ErrValidation)
	assert.Zero(t, model.Calls("title"))
}

func TestInvokeStopsOnCancelledContext(t *testing.T) {
	model := llmtest.New().Reply("title", map[string]any{"title": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out titleOut
	err := llm.NewInvoker(model, 3, logger.Nop()).Invoke(ctx, prompt(), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, model.Calls("title"))
}

func TestObjectSchemaRequiresEveryProperty(t *testing.T) {
	s := llm.Object(map[string]any{"b": llm.String(), "a": llm.Integer()})
	assert.Equal(t, []string{"a", "b"}, s["required"])
	assert.Equal(t, false, s["additionalProperties"])
}
