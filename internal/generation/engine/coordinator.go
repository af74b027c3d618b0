package engine

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

// PagesShare is the part of job progress spent on pages; finalisation takes
// the job to 100.
const PagesShare = 95.0

// Report is the final accounting of one job. len(Processed)+len(Failed)
// always equals Total.
type Report struct {
	Total     int
	Processed []uuid.UUID
	Failed    []uuid.UUID
	// Retried is the size of the retry pass, zero when it did not run.
	Retried int
}

// Coordinator runs a first pass over every task and, when pages came back
// empty, exactly one more pass over those pages.
type Coordinator struct {
	engine  *Engine
	metrics observability.Recorder
	log     *logger.Logger
}

func NewCoordinator(e *Engine, metrics observability.Recorder, log *logger.Logger) *Coordinator {
	if metrics == nil {
		metrics = observability.NoopRecorder{}
	}
	return &Coordinator{engine: e, metrics: metrics, log: log.With("component", "RetryCoordinator")}
}

func (c *Coordinator) Run(ctx context.Context, job *Job, tasks []Task) Report {
	rep := Report{Total: len(tasks)}
	if len(tasks) == 0 {
		return rep
	}
	log := c.log.With("cluster_id", job.ClusterID)

	first := *job
	first.PageBudget = PagesShare / float64(len(tasks))
	out := c.engine.Run(ctx, &first, tasks)
	rep.Processed = append(rep.Processed, out.Processed...)
	if len(out.Unprocessed) == 0 {
		return rep
	}
	if ctx.Err() != nil {
		log.Info("job cancelled, skipping retry pass", "unprocessed", len(out.Unprocessed))
		rep.Failed = out.Unprocessed
		return rep
	}

	retry := subset(tasks, out.Unprocessed)
	rep.Retried = len(retry)
	c.metrics.IncRetryPass(len(retry))
	log.Info("retrying unprocessed pages", "pages", len(retry))

	ctx, span := observability.StartSpan(ctx, "generation.retry_pass",
		attribute.String("cluster_id", job.ClusterID.String()),
		attribute.Int("pages", len(retry)),
	)
	defer span.End()

	second := *job
	remaining := PagesShare
	if job.Progress != nil {
		remaining -= job.Progress.Value()
	}
	second.PageBudget = max(remaining, 0) / float64(len(retry))
	out = c.engine.Run(ctx, &second, retry)
	rep.Processed = append(rep.Processed, out.Processed...)
	rep.Failed = out.Unprocessed
	return rep
}

// subset keeps the tasks whose page is in ids, in task order.
func subset(tasks []Task, ids []uuid.UUID) []Task {
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]Task, 0, len(ids))
	for _, t := range tasks {
		if _, ok := want[t.PageID]; ok {
			out = append(out, t)
		}
	}
	return out
}
