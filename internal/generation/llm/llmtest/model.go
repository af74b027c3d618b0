// Package llmtest provides a scripted generative model for tests.
package llmtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/yungbote/clusterforge-backend/internal/platform/openai"
)

// Responder produces the reply for one call. A string value is returned
// verbatim as raw JSON; anything else is marshalled.
type Responder func(ctx context.Context, user string, call int) (any, error)

type Model struct {
	mu         sync.Mutex
	responders map[string]Responder
	calls      map[string]int
	Default    Responder
	ImageFn    func(ctx context.Context, prompt string) (openai.ImageGeneration, error)
}

func New() *Model {
	return &Model{responders: map[string]Responder{}, calls: map[string]int{}}
}

func (m *Model) On(name string, r Responder) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responders[name] = r
	return m
}

// Reply answers every call for name with v.
func (m *Model) Reply(name string, v any) *Model {
	return m.On(name, func(context.Context, string, int) (any, error) { return v, nil })
}

func (m *Model) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *Model) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	m.mu.Lock()
	m.calls[schemaName]++
	n := m.calls[schemaName]
	r := m.responders[schemaName]
	if r == nil {
		r = m.Default
	}
	m.mu.Unlock()

	if r == nil {
		return nil, fmt.Errorf("llmtest: no responder for %q", schemaName)
	}
	v, err := r(ctx, user, n)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		return json.RawMessage(s), nil
	}
	return json.Marshal(v)
}

func (m *Model) GenerateImage(ctx context.Context, prompt string) (openai.ImageGeneration, error) {
	m.mu.Lock()
	m.calls["image"]++
	fn := m.ImageFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, prompt)
	}
	return openai.ImageGeneration{Bytes: PNG(8, 4), MimeType: "image/png"}, nil
}

// PNG returns an encoded solid image of the given size.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
