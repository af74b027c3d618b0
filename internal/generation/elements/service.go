// Package elements fills the placeholder elements of one page.
package elements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/clusterforge-backend/internal/generation/llm"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/platform/openai"
	"github.com/yungbote/clusterforge-backend/internal/platform/search"
)

const (
	DefaultMaxAttempts   = 3
	DefaultMaxReferences = 5
)

var (
	errNotProcessed = errors.New("element not processed")
	// ErrFillerPanic wraps a panic raised while filling an element.
	ErrFillerPanic = errors.New("filler panic")
)

// Invoker is the generative-content collaborator.
type Invoker interface {
	Invoke(ctx context.Context, p llm.Prompt, out any) error
	Image(ctx context.Context, prompt string) (openai.ImageGeneration, error)
}

// ImageStore uploads generated images and returns their public URI.
type ImageStore interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
}

type LinkFilter interface {
	Filter(ctx context.Context, urls []string) []string
}

type Config struct {
	MaxAttempts   int
	MaxReferences int
	ImageMaxWidth int
}

type Deps struct {
	Invoker Invoker
	Images  ImageStore
	Search  search.Searcher
	Links   LinkFilter
	Metrics observability.Recorder
}

type Service struct {
	inv     Invoker
	images  ImageStore
	search  search.Searcher
	links   LinkFilter
	metrics observability.Recorder
	cfg     Config
	log     *logger.Logger
}

func NewService(deps Deps, cfg Config, log *logger.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxReferences <= 0 {
		cfg.MaxReferences = DefaultMaxReferences
	}
	if cfg.ImageMaxWidth <= 0 {
		cfg.ImageMaxWidth = 1024
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopRecorder{}
	}
	return &Service{
		inv:     deps.Invoker,
		images:  deps.Images,
		search:  deps.Search,
		links:   deps.Links,
		metrics: deps.Metrics,
		cfg:     cfg,
		log:     log.With("service", "ElementService"),
	}
}

// WithLinks returns a copy that validates reference links through l.
func (s *Service) WithLinks(l LinkFilter) *Service {
	cp := *s
	cp.links = l
	return &cp
}

type fillFunc func(s *Service, ctx context.Context, e *structure.Element, pc *PageContext) error

// retry runs fn on a copy of e until it reports processed, at most
// MaxAttempts times. The copy replaces e only on success; otherwise e is left
// untouched and unprocessed.
func (s *Service) retry(ctx context.Context, e *structure.Element, pc *PageContext, fn fillFunc) bool {
	for n := 1; n <= s.cfg.MaxAttempts; n++ {
		if ctx.Err() != nil {
			return false
		}
		c := e.Clone()
		err := attempt(func() error { return fn(s, ctx, c, pc) })
		if err == nil && c.Processed {
			*e = *c
			return true
		}
		if err == nil {
			err = errNotProcessed
		}
		if n < s.cfg.MaxAttempts {
			s.metrics.IncElementRetry(e.Tag)
		}
		s.log.Debug("element attempt failed", "page_id", pc.PageID, "tag", e.Tag, "attempt", n, "error", err)
	}
	s.log.Warn("element left empty", "page_id", pc.PageID, "tag", e.Tag)
	return false
}

// attempt runs fn and reports a panic as an error.
func attempt(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFillerPanic, r)
		}
	}()
	return fn()
}

// Go runs fn on g. A panic in fn becomes the goroutine's error instead of
// crashing the process.
func Go(g *errgroup.Group, fn func() error) {
	g.Go(func() error { return attempt(fn) })
}

// FillSimple fills an element that depends only on the page context.
// Tags without generated content are marked processed as they are.
func (s *Service) FillSimple(ctx context.Context, e *structure.Element, pc *PageContext) bool {
	if e.Processed {
		return true
	}
	if fn, ok := simpleFillers[e.Tag]; ok {
		return s.retry(ctx, e, pc, fn)
	}
	markStatic(e)
	return true
}

// Deferred reports whether tag waits for the body copy.
func Deferred(tag string) bool {
	switch tag {
	case structure.TagContentMenu, structure.TagReferences, structure.TagRelatedPages, structure.TagH2:
		return true
	}
	return structure.IsImage(tag)
}

func markStatic(e *structure.Element) {
	e.Walk(func(el *structure.Element) { el.Processed = true })
}

// generic converts typed model output into plain maps and slices so element
// content can be deep-copied.
func generic(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
