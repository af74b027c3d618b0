package cluster_generate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/generation/engine"
	"github.com/yungbote/clusterforge-backend/internal/generation/pages"
	"github.com/yungbote/clusterforge-backend/internal/jobs/progress"
	jobrt "github.com/yungbote/clusterforge-backend/internal/jobs/runtime"
	"github.com/yungbote/clusterforge-backend/internal/jobs/state"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/search"
)

var (
	ErrNoPagesGenerated = errors.New("no page was generated")
	ErrCanceled         = errors.New("generation canceled")
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	var in jobs.GeneratePayload
	if err := jc.Decode(&in); err != nil {
		jc.Fail("decode", err)
		return nil
	}
	if in.ClusterID == uuid.Nil {
		jc.Fail("decode", fmt.Errorf("cluster_id is required"))
		return nil
	}

	ctx, span := observability.StartSpan(jc.Ctx, "job.cluster_generate",
		attribute.String("cluster.id", in.ClusterID.String()),
		attribute.Int("pages.charged", len(in.PageIDs)),
	)
	defer span.End()

	c, err := p.deps.Repos.Cluster.GetByID(dbctx.Context{Ctx: ctx}, in.ClusterID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if c == nil {
		jc.Fail("load", state.ErrNotFound)
		return nil
	}
	if c.Status != cluster.StatusGenerating {
		jc.Fail("load", fmt.Errorf("%w: cluster is %s", state.ErrNotAllowed, c.Status))
		return nil
	}
	log := p.log.With("cluster_id", c.ID, "job_id", jc.Job.ID)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	var canceled atomic.Bool
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		p.watchCancel(runCtx, jc, stop, &canceled)
	}()
	stopBeat := jc.KeepAlive(runCtx, p.cfg.Heartbeat)

	reporter := progress.NewReporter(c.ID, c.OwnerID, progress.Options{
		Emitter: p.deps.Events,
		Store:   p.deps.Machine.Locks(),
		Metrics: p.deps.Metrics,
	}, log)

	jc.Progress("plan", 1, "Preparing pages")
	var (
		report engine.Report
		pl     *plan
		jobErr error
	)
	pl, jobErr = p.prepare(dbctx.Context{Ctx: runCtx}, c, in.PageIDs)
	if jobErr == nil {
		report = p.generate(runCtx, c, pl, reporter)
	} else {
		log.Warn("generation plan failed", "error", jobErr)
	}

	// The watcher and heartbeat must be gone before finalize takes the connection.
	stop()
	<-watchDone
	stopBeat()
	if canceled.Load() || (ctx.Err() != nil && jobErr == nil) {
		jobErr = ErrCanceled
	}

	out, err := p.finalize(jc, c, in, pl, report, jobErr, reporter)
	if err != nil {
		log.Error("finalize failed", "error", err)
		jc.Fail("finalize", err)
		return nil
	}
	switch {
	case jobErr != nil:
		jc.Fail("generate", jobErr)
	case out.Status == cluster.StatusGenerationFailed:
		jc.Fail("generate", ErrNoPagesGenerated)
	default:
		jc.Succeed("done", out)
	}
	return nil
}

func (p *Pipeline) generate(ctx context.Context, c *cluster.Cluster, pl *plan, reporter *progress.Reporter) engine.Report {
	svc := p.deps.Elements
	if p.deps.Links != nil {
		svc = svc.WithLinks(p.deps.Links.WithCache(search.NewMemoryCache()))
	}
	sink := &pageSink{
		pages:   p.deps.Repos.Page,
		store:   p.deps.Store,
		ownerID: c.OwnerID,
		styles:  pl.styles,
		log:     p.log,
	}
	eng := engine.New(pages.NewSet(svc, p.log), sink, p.cfg.MaxWorkers, p.deps.Metrics, p.log)
	coord := engine.NewCoordinator(eng, p.deps.Metrics, p.log)
	job := &engine.Job{ClusterID: c.ID, Templates: pl.templates, Progress: reporter}
	return coord.Run(ctx, job, pl.tasks)
}

// watchCancel polls the job row and cancels the run once it was canceled
// from outside.
func (p *Pipeline) watchCancel(ctx context.Context, jc *jobrt.Context, cancel context.CancelFunc, flag *atomic.Bool) {
	t := time.NewTicker(p.cfg.CancelPoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ok, err := jc.Canceled()
			if err != nil {
				p.log.Warn("cancel poll failed", "job_id", jc.Job.ID, "error", err)
				continue
			}
			if ok {
				flag.Store(true)
				cancel()
				return
			}
		}
	}
}
