// Package engine distributes page tasks over a bounded worker pool and
// retries the pages that came back empty.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/generation/elements"
	"github.com/yungbote/clusterforge-backend/internal/generation/pages"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
	"github.com/yungbote/clusterforge-backend/internal/jobs/progress"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

const DefaultMaxWorkers = 5

var errInvalidResult = errors.New("page result has no content")

// Task is one page to generate.
type Task struct {
	PageID  uuid.UUID
	Intent  cluster.Intent
	Context *elements.PageContext
}

// Sink persists a valid page result. A returned error leaves the page
// unprocessed.
type Sink interface {
	Persist(ctx context.Context, t Task, res *pages.Result) error
}

// Generators resolves the page pipeline for an intent.
type Generators interface {
	For(intent cluster.Intent) (pages.Generator, error)
}

// Job is the per-run context shared by every task of one cluster.
type Job struct {
	ClusterID uuid.UUID
	Templates map[cluster.Intent]*structure.Structure
	Progress  *progress.Reporter
	// PageBudget is the share of job progress, in points, each page is worth.
	PageBudget float64
}

// Outcome splits the tasks of one pass by result. Both lists follow task
// order.
type Outcome struct {
	Processed   []uuid.UUID
	Unprocessed []uuid.UUID
}

type Engine struct {
	gens       Generators
	sink       Sink
	maxWorkers int
	metrics    observability.Recorder
	log        *logger.Logger
}

func New(gens Generators, sink Sink, maxWorkers int, metrics observability.Recorder, log *logger.Logger) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if metrics == nil {
		metrics = observability.NoopRecorder{}
	}
	return &Engine{
		gens:       gens,
		sink:       sink,
		maxWorkers: maxWorkers,
		metrics:    metrics,
		log:        log.With("component", "GenerationEngine"),
	}
}

// Run executes tasks with at most maxWorkers in flight. Page failures,
// panics and cancellation never escape; they only mark the page unprocessed.
func (e *Engine) Run(ctx context.Context, job *Job, tasks []Task) Outcome {
	ok := make([]bool, len(tasks))
	var g errgroup.Group
	g.SetLimit(e.maxWorkers)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			ok[i] = e.runTask(ctx, job, t)
			return nil
		})
	}
	_ = g.Wait()

	var out Outcome
	for i, t := range tasks {
		if ok[i] {
			out.Processed = append(out.Processed, t.PageID)
		} else {
			out.Unprocessed = append(out.Unprocessed, t.PageID)
		}
	}
	return out
}

func (e *Engine) runTask(ctx context.Context, job *Job, t Task) (ok bool) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "generation.page",
		attribute.String("cluster_id", job.ClusterID.String()),
		attribute.String("page_id", t.PageID.String()),
		attribute.String("intent", string(t.Intent)),
	)
	log := e.log.With("cluster_id", job.ClusterID, "page_id", t.PageID, "intent", t.Intent)

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page task panic: %v", r)
			ok = false
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("page unprocessed", "error", err)
		}
		span.End()
		e.metrics.ObservePage(string(t.Intent), ok, time.Since(start))
	}()

	err = e.generate(ctx, job, t)
	return err == nil
}

func (e *Engine) generate(ctx context.Context, job *Job, t Task) error {
	gen, err := e.gens.For(t.Intent)
	if err != nil {
		return err
	}
	tpl := job.Templates[t.Intent]
	if tpl == nil {
		return fmt.Errorf("no content structure for intent %q", t.Intent)
	}
	if t.Context == nil {
		return fmt.Errorf("no page context")
	}

	tr := job.Progress.Page(job.PageBudget)
	res, err := gen.Generate(ctx, tpl, t.Context, tr)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !res.Valid() {
		return errInvalidResult
	}
	if err := e.sink.Persist(ctx, t, res); err != nil {
		return fmt.Errorf("persist page: %w", err)
	}
	tr.Finish("page generated")
	return nil
}
