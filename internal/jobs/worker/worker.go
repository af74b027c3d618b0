package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	jobrepo "github.com/yungbote/clusterforge-backend/internal/data/repos/jobs"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/jobs/runtime"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/envutil"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
	// RetryableTypes may be claimed again after failing.
	RetryableTypes []string
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency:  envutil.Int("WORKER_CONCURRENCY", 2),
		PollInterval: envutil.Duration("WORKER_POLL_INTERVAL", time.Second),
		MaxAttempts:  envutil.Int("WORKER_MAX_ATTEMPTS", 3),
		RetryDelay:   envutil.Duration("WORKER_RETRY_DELAY", 30*time.Second),
		StaleRunning: envutil.Duration("WORKER_STALE_RUNNING", 30*time.Minute),
	}
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobrepo.JobRunRepo
	registry *runtime.Registry
	events   *realtime.Emitter
	metrics  observability.Recorder
	cfg      Config
	wg       sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo jobrepo.JobRunRepo, registry *runtime.Registry, events *realtime.Emitter, metrics observability.Recorder, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if metrics == nil {
		metrics = observability.NoopRecorder{}
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		events:   events,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Start launches the claim loops. They stop when ctx is done; Wait blocks
// until every in-flight run returned.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "job_types", w.registry.Types())
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.runLoop(ctx, id)
		}(i + 1)
	}
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			for w.RunOnce(ctx) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// RunOnce claims and executes at most one runnable job. It reports whether a
// job was claimed.
func (w *Worker) RunOnce(ctx context.Context) bool {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, jobrepo.ClaimOptions{
		MaxAttempts:    w.cfg.MaxAttempts,
		RetryDelay:     w.cfg.RetryDelay,
		StaleRunning:   w.cfg.StaleRunning,
		RetryableTypes: w.cfg.RetryableTypes,
	})
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("ClaimNextRunnable failed", "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}
	w.Execute(ctx, job)
	return true
}

// Execute runs an already claimed job through its registered handler. It is
// also the entry point for runs dispatched through Temporal.
func (w *Worker) Execute(ctx context.Context, job *jobs.JobRun) {
	start := time.Now()
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.events)
	log := w.log.With("job_id", job.ID, "job_type", job.JobType)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type")
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		w.metrics.ObserveJob(job.JobType, "unhandled", time.Since(start))
		return
	}

	outcome := "succeeded"
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Job handler panic", "panic", r)
				jc.Fail("panic", &panicError{Val: r})
				outcome = "panic"
			}
		}()
		if runErr := h.Run(jc); runErr != nil {
			// Most handlers call jc.Fail themselves; this is a safety net.
			jc.Fail("run", runErr)
			outcome = "failed"
		}
	}()
	w.metrics.ObserveJob(job.JobType, outcome, time.Since(start))
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }

func (w *Worker) Concurrency() int { return w.cfg.Concurrency }
