package jobrun

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

// Dispatcher starts one workflow per committed job run.
type Dispatcher struct {
	tc        temporalsdkclient.Client
	taskQueue string
	log       *logger.Logger
}

func NewDispatcher(tc temporalsdkclient.Client, taskQueue string, log *logger.Logger) *Dispatcher {
	return &Dispatcher{tc: tc, taskQueue: taskQueue, log: log.With("component", "TemporalDispatcher")}
}

func (d *Dispatcher) Dispatch(ctx context.Context, job *jobs.JobRun) error {
	if d == nil || d.tc == nil {
		return fmt.Errorf("temporal client is not configured")
	}
	run, err := d.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        WorkflowID(job),
		TaskQueue: d.taskQueue,
	}, WorkflowName, job.ID.String())
	if err != nil {
		return fmt.Errorf("start workflow for job %s: %w", job.ID, err)
	}
	d.log.Info("job dispatched", "job_id", job.ID, "job_type", job.JobType, "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}
