package jobrun

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
)

// Workflow runs the job once. Retries belong to the job itself (a failed
// generation is retried by the owner), so the activity gets one attempt.
func Workflow(ctx workflow.Context, jobID string) (RunResult, error) {
	if jobID == "" {
		return RunResult{}, fmt.Errorf("jobrun: missing job_id")
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 6 * time.Hour,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var out RunResult
	if err := workflow.ExecuteActivity(ctx, ActivityRun, jobID).Get(ctx, &out); err != nil {
		return out, err
	}
	if out.Status == jobs.StatusFailed {
		return out, fmt.Errorf("job %s failed at stage %s: %s", out.JobID, out.Stage, out.Error)
	}
	return out, nil
}
