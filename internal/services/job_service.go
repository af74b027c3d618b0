package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

// Dispatcher hands a committed job run to an external executor. Without one,
// the job-run table worker claims queued runs on its own.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *jobs.JobRun) error
}

// JobSpec describes a run to enqueue. ID may be preset so other rows written
// in the same transaction can reference it.
type JobSpec struct {
	ID       uuid.UUID
	OwnerID  uuid.UUID
	JobType  string
	EntityID uuid.UUID
	Payload  any
}

type JobService interface {
	Enqueue(dbc dbctx.Context, in JobSpec) (*jobs.JobRun, error)
	// Dispatch must be called after the enqueuing transaction committed.
	Dispatch(dbc dbctx.Context, job *jobs.JobRun) error
	// Cancel marks a run canceled. wasQueued reports that no worker had
	// claimed it yet.
	Cancel(dbc dbctx.Context, ownerID, jobID uuid.UUID) (job *jobs.JobRun, wasQueued bool, err error)
	LatestForEntity(dbc dbctx.Context, ownerID, entityID uuid.UUID, jobType string) (*jobs.JobRun, error)
}

type jobService struct {
	db         *gorm.DB
	log        *logger.Logger
	repo       repos.JobRunRepo
	events     *realtime.Emitter
	dispatcher Dispatcher
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, events *realtime.Emitter, dispatcher Dispatcher) JobService {
	return &jobService{
		db:         db,
		log:        baseLog.With("service", "JobService"),
		repo:       repo,
		events:     events,
		dispatcher: dispatcher,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, in JobSpec) (*jobs.JobRun, error) {
	if in.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if in.JobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	raw := []byte(`{}`)
	if in.Payload != nil {
		b, err := json.Marshal(in.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		raw = b
	}
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	job := &jobs.JobRun{
		ID:          id,
		OwnerUserID: in.OwnerID,
		JobType:     in.JobType,
		Status:      jobs.StatusQueued,
		Stage:       "queued",
		Message:     "Queued",
		Payload:     datatypes.JSON(raw),
	}
	if in.EntityID != uuid.Nil {
		entityID := in.EntityID
		job.EntityType = jobs.EntityTypeCluster
		job.EntityID = &entityID
	}
	if _, err := s.repo.Create(dbc, []*jobs.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Debug("job enqueued", "job_id", job.ID, "job_type", job.JobType)
	return job, nil
}

func (s *jobService) Dispatch(dbc dbctx.Context, job *jobs.JobRun) error {
	if job == nil {
		return fmt.Errorf("missing job")
	}
	if s.dispatcher == nil {
		return nil
	}
	ctx := dbc.Context()
	err := s.dispatcher.Dispatch(ctx, job)
	if err == nil {
		return nil
	}
	now := time.Now()
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx}, job.ID, map[string]interface{}{
		"status":        jobs.StatusFailed,
		"stage":         "dispatch",
		"error":         err.Error(),
		"last_error_at": now,
		"locked_at":     nil,
	})
	return fmt.Errorf("dispatch job: %w", err)
}

func (s *jobService) Cancel(dbc dbctx.Context, ownerID, jobID uuid.UUID) (*jobs.JobRun, bool, error) {
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, false, err
	}
	if job == nil || job.OwnerUserID != ownerID {
		return nil, false, ErrJobNotFound
	}
	updates := func() map[string]interface{} {
		return map[string]interface{}{
			"status":    jobs.StatusCanceled,
			"stage":     "canceled",
			"message":   "Canceled",
			"locked_at": nil,
		}
	}
	finished := []string{jobs.StatusSucceeded, jobs.StatusFailed, jobs.StatusCanceled}

	// A run nobody claimed yet has nobody to notice the cancel.
	wasQueued, err := s.repo.UpdateFieldsUnlessStatus(dbc, jobID, append([]string{jobs.StatusRunning}, finished...), updates())
	if err != nil {
		return nil, false, err
	}
	if !wasQueued {
		ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, jobID, finished, updates())
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return job, false, ErrJobFinished
		}
	}
	job.Status, job.Stage, job.Message = jobs.StatusCanceled, "canceled", "Canceled"
	s.events.Emit(dbc.Context(), ownerID, realtime.EventJobProgress, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"status":   job.Status,
		"stage":    job.Stage,
	})
	s.log.Info("job canceled", "job_id", job.ID, "was_queued", wasQueued)
	return job, wasQueued, nil
}

func (s *jobService) LatestForEntity(dbc dbctx.Context, ownerID, entityID uuid.UUID, jobType string) (*jobs.JobRun, error) {
	return s.repo.GetLatestByEntity(dbc, ownerID, jobs.EntityTypeCluster, entityID, jobType)
}
