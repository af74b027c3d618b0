// Package jobrun executes job_run rows as Temporal workflows. One workflow
// wraps one run; the run row stays the source of truth for status.
package jobrun

import (
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
)

const (
	WorkflowName = "job_run"
	ActivityRun  = "job_run_execute"
)

// WorkflowID is stable per run so a duplicate dispatch is rejected by
// Temporal instead of executing twice.
func WorkflowID(job *jobs.JobRun) string {
	switch job.JobType {
	case jobs.JobTypeClusterGenerate:
		return "cluster-generation-" + job.ID.String()
	case jobs.JobTypeClusterStructure:
		return "cluster-structure-" + job.ID.String()
	}
	return "job-run-" + job.ID.String()
}

type RunResult struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}
