package jobrun

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

// Executor runs a claimed job through its handler.
type Executor interface {
	Execute(ctx context.Context, job *jobs.JobRun)
}

type Activities struct {
	Log  *logger.Logger
	Jobs repos.JobRunRepo
	Exec Executor
	// HeartbeatEvery defaults to 10s.
	HeartbeatEvery time.Duration
}

func (a *Activities) Run(ctx context.Context, jobID string) (RunResult, error) {
	res := RunResult{JobID: jobID}
	if a == nil || a.Jobs == nil || a.Exec == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(jobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id %q", jobID)
	}
	dbc := dbctx.Context{Ctx: ctx}

	job, err := a.Jobs.ClaimByID(dbc, id)
	if err != nil {
		return res, fmt.Errorf("jobrun: claim: %w", err)
	}
	if job == nil {
		// Canceled before we got here, or another executor already owns it.
		current, err := a.Jobs.GetByID(dbc, id)
		if err != nil {
			return res, err
		}
		if current == nil {
			return res, fmt.Errorf("jobrun: job %s not found", id)
		}
		a.Log.Info("job run not claimable, skipping", "job_id", id, "status", current.Status)
		return fill(res, current), nil
	}

	stop := a.heartbeat(ctx, id)
	a.Exec.Execute(ctx, job)
	stop()

	final, err := a.Jobs.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		return res, err
	}
	if final == nil {
		return res, fmt.Errorf("jobrun: job %s vanished", id)
	}
	return fill(res, final), nil
}

func fill(res RunResult, j *jobs.JobRun) RunResult {
	res.Status = j.Status
	res.Stage = j.Stage
	res.Progress = j.Progress
	res.Error = j.Error
	return res
}

func (a *Activities) heartbeat(ctx context.Context, id uuid.UUID) func() {
	every := a.HeartbeatEvery
	if every <= 0 {
		every = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
				if err := a.Jobs.Heartbeat(dbctx.Context{Ctx: ctx}, id); err != nil {
					a.Log.Warn("job heartbeat failed", "job_id", id, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}
