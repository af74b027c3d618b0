package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/platform/openai"
)

var (
	// ErrGeneration marks a failed call to the generative model.
	ErrGeneration = errors.New("generation failed")
	// ErrValidation marks model output that did not match the requested shape.
	ErrValidation = errors.New("generation output failed validation")
)

// Model is the generative-content collaborator.
type Model interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error)
	GenerateImage(ctx context.Context, prompt string) (openai.ImageGeneration, error)
}

type Prompt struct {
	Name   string
	System string
	User   string
	Schema map[string]any
}

// Validator is implemented by output types that check their own content.
type Validator interface {
	Validate() error
}

type Invoker struct {
	model    Model
	attempts int
	log      *logger.Logger
}

func NewInvoker(model Model, attempts int, log *logger.Logger) *Invoker {
	if attempts < 1 {
		attempts = 1
	}
	return &Invoker{model: model, attempts: attempts, log: log.With("component", "Invoker")}
}

// Invoke asks the model for a value of the prompt's schema and decodes it
// into out, which must be a non-nil pointer. Each attempt decodes into a
// copy of the caller's value; out is only written on success. Generation
// and validation failures are retried up to the configured number of
// attempts; the returned error wraps ErrGeneration or ErrValidation.
func (i *Invoker) Invoke(ctx context.Context, p Prompt, out any) error {
	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		return fmt.Errorf("%w: %s: output must be a non-nil pointer, got %T", ErrValidation, p.Name, out)
	}
	var lastErr error
	for attempt := 1; attempt <= i.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := i.model.GenerateJSON(ctx, p.System, p.User, p.Name, p.Schema)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %s: %v", ErrGeneration, p.Name, err)
		} else {
			fresh := reflect.New(dst.Type().Elem())
			fresh.Elem().Set(dst.Elem())
			if err := decode(raw, fresh.Interface()); err != nil {
				lastErr = fmt.Errorf("%w: %s: %v", ErrValidation, p.Name, err)
			} else {
				dst.Elem().Set(fresh.Elem())
				return nil
			}
		}
		i.log.Debug("model call retrying", "prompt", p.Name, "attempt", attempt, "error", lastErr)
	}
	return lastErr
}

func decode(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return err
	}
	if v, ok := out.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// Image generates one image for prompt.
func (i *Invoker) Image(ctx context.Context, prompt string) (openai.ImageGeneration, error) {
	img, err := i.model.GenerateImage(ctx, prompt)
	if err != nil {
		return img, fmt.Errorf("%w: image: %v", ErrGeneration, err)
	}
	if len(img.Bytes) == 0 {
		return img, fmt.Errorf("%w: image: empty payload", ErrValidation)
	}
	return img, nil
}
