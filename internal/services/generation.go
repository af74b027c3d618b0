package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/billing"
	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	domainbilling "github.com/yungbote/clusterforge-backend/internal/domain/billing"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/generation/structure"
	"github.com/yungbote/clusterforge-backend/internal/jobs/state"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

var ErrAlreadyGenerated = errors.New("every page of the cluster is already generated")

// GenerationTicket is what a caller gets back for an accepted request.
type GenerationTicket struct {
	Cluster *cluster.Cluster
	Job     *jobs.JobRun
	Charge  *domainbilling.Transaction
	Pages   int
}

type PageCounts struct {
	Total     int64 `json:"total"`
	Generated int64 `json:"generated"`
}

type GenerationStatus struct {
	ClusterID uuid.UUID      `json:"cluster_id"`
	Status    cluster.Status `json:"status"`
	// Progress comes from the job lock and is only set while it is held.
	Progress *float64    `json:"progress,omitempty"`
	Pages    PageCounts  `json:"pages"`
	Job      *jobs.JobRun `json:"job,omitempty"`
	// Charges lists the cluster's ledger entries, oldest first.
	Charges []*domainbilling.Transaction `json:"charges,omitempty"`
}

type GenerationService interface {
	Request(dbc dbctx.Context, ownerID, clusterID uuid.UUID) (*GenerationTicket, error)
	Cancel(dbc dbctx.Context, ownerID, clusterID uuid.UUID) (*jobs.JobRun, error)
	Status(dbc dbctx.Context, ownerID, clusterID uuid.UUID) (*GenerationStatus, error)
}

type generationService struct {
	db      *gorm.DB
	log     *logger.Logger
	repos   repos.Set
	ledger  *billing.Ledger
	machine *state.Machine
	jobs    JobService
	events  *realtime.Emitter
}

func NewGenerationService(db *gorm.DB, baseLog *logger.Logger, rs repos.Set, ledger *billing.Ledger, machine *state.Machine, jobSvc JobService, events *realtime.Emitter) GenerationService {
	return &generationService{
		db:      db,
		log:     baseLog.With("service", "GenerationService"),
		repos:   rs,
		ledger:  ledger,
		machine: machine,
		jobs:    jobSvc,
		events:  events,
	}
}

type statusChanged struct {
	ClusterID uuid.UUID      `json:"cluster_id"`
	Status    cluster.Status `json:"status"`
}

func (s *generationService) load(dbc dbctx.Context, ownerID, clusterID uuid.UUID) (*cluster.Cluster, error) {
	c, err := s.repos.Cluster.GetForOwner(dbc, ownerID, clusterID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, state.ErrNotFound
	}
	return c, nil
}

// Request charges the owner for every draft page, moves the cluster to
// GENERATING and queues the cluster_generate run, all or nothing.
func (s *generationService) Request(dbc dbctx.Context, ownerID, clusterID uuid.UUID) (*GenerationTicket, error) {
	ctx := dbc.Context()
	c, err := s.load(dbc, ownerID, clusterID)
	if err != nil {
		return nil, err
	}
	if err := s.machine.ClearStaleLock(ctx, c); err != nil {
		return nil, err
	}
	if !c.Status.AbleToGenerate() {
		if c.Status.Locked() {
			return nil, state.ErrJobLocked
		}
		return nil, fmt.Errorf("%w: cluster is %s", state.ErrNotAllowed, c.Status)
	}
	drafts, err := s.repos.Page.ListByStatus(dbc, c.ID, cluster.PageStatusDraft)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, ErrAlreadyGenerated
	}
	rows, err := s.repos.Settings.ListByCluster(dbc, c.ID)
	if err != nil {
		return nil, err
	}
	if _, err := structure.CompileAll(rows); err != nil {
		return nil, err
	}

	ticket := &GenerationTicket{Pages: len(drafts)}
	pageIDs := make([]uuid.UUID, len(drafts))
	for i, p := range drafts {
		pageIDs[i] = p.ID
	}
	jobID := uuid.New()
	entered := false
	err = dbc.Conn(s.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.WithTx(ctx, tx)
		if err := s.enter(inner, c, ownerID); err != nil {
			return err
		}
		entered = true
		charge, err := s.ledger.Charge(inner, billing.ChargeRequest{
			OwnerID:  ownerID,
			ObjectID: c.ID,
			JobRunID: jobID,
			Units:    len(drafts),
			Info:     fmt.Sprintf("generation of %d pages", len(drafts)),
		})
		if err != nil {
			return err
		}
		payload := jobs.GeneratePayload{
			ClusterID:  c.ID,
			OwnerID:    ownerID,
			ChargeTxID: charge.ID,
			PageIDs:    pageIDs,
		}
		if td := ctxutil.GetTraceData(ctx); td != nil {
			payload.RequestID = td.RequestID
		}
		job, err := s.jobs.Enqueue(inner, JobSpec{
			ID:       jobID,
			OwnerID:  ownerID,
			JobType:  jobs.JobTypeClusterGenerate,
			EntityID: c.ID,
			Payload:  payload,
		})
		if err != nil {
			return err
		}
		ticket.Charge, ticket.Job = charge, job
		return nil
	})
	if err != nil {
		if entered {
			s.machine.EndPhase(ctx, c.ID)
		}
		return nil, err
	}

	c.Status = cluster.StatusGenerating
	ticket.Cluster = c
	s.events.Emit(ctx, ownerID, realtime.EventClusterStatusChanged, statusChanged{ClusterID: c.ID, Status: c.Status})
	if err := s.jobs.Dispatch(dbctx.Context{Ctx: ctx}, ticket.Job); err != nil {
		s.log.Error("dispatch failed", "cluster_id", c.ID, "job_id", ticket.Job.ID, "error", err)
		if aerr := s.abandon(dbctx.Context{Ctx: ctx}, c, ticket.Job); aerr != nil {
			s.log.Error("settle undispatched run failed", "cluster_id", c.ID, "error", aerr)
		}
		return ticket, err
	}
	s.log.Info("generation requested", "cluster_id", c.ID, "job_id", ticket.Job.ID, "pages", ticket.Pages, "amount", ticket.Charge.Amount)
	return ticket, nil
}

// enter takes the job lock and moves the cluster into GENERATING. A failed
// cluster re-enters through the state machine's retry edge.
func (s *generationService) enter(dbc dbctx.Context, c *cluster.Cluster, ownerID uuid.UUID) error {
	if c.Status == cluster.StatusGenerationFailed {
		_, err := s.machine.Retry(dbc, c.ID)
		return err
	}
	if err := s.machine.BeginPhase(dbc.Context(), c.ID, ownerID, cluster.StatusGenerating); err != nil {
		return err
	}
	if err := s.machine.Transition(dbc, c.ID, c.Status, cluster.StatusGenerating); err != nil {
		s.machine.EndPhase(dbc.Context(), c.ID)
		return err
	}
	return nil
}

// Cancel cancels the cluster's active generation run. A run still waiting in
// the queue is settled here, since no worker will ever pick it up.
func (s *generationService) Cancel(dbc dbctx.Context, ownerID, clusterID uuid.UUID) (*jobs.JobRun, error) {
	c, err := s.load(dbc, ownerID, clusterID)
	if err != nil {
		return nil, err
	}
	if c.Status != cluster.StatusGenerating {
		return nil, fmt.Errorf("%w: cluster is %s", state.ErrNotAllowed, c.Status)
	}
	latest, err := s.jobs.LatestForEntity(dbc, ownerID, c.ID, jobs.JobTypeClusterGenerate)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrJobNotFound
	}
	job, wasQueued, err := s.jobs.Cancel(dbc, ownerID, latest.ID)
	if err != nil {
		return nil, err
	}
	if wasQueued {
		if err := s.abandon(dbc, c, job); err != nil {
			return job, err
		}
	}
	return job, nil
}

func (s *generationService) abandon(dbc dbctx.Context, c *cluster.Cluster, job *jobs.JobRun) error {
	ctx := dbc.Context()
	var in jobs.GeneratePayload
	if err := json.Unmarshal(job.Payload, &in); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	err := dbc.Conn(s.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.WithTx(ctx, tx)
		if err := s.machine.Transition(inner, c.ID, cluster.StatusGenerating, cluster.StatusGenerationFailed); err != nil {
			return err
		}
		if in.ChargeTxID == uuid.Nil {
			return nil
		}
		_, err := s.ledger.Refund(inner, in.ChargeTxID, len(in.PageIDs))
		if errors.Is(err, billing.ErrAlreadySettled) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	s.machine.EndPhase(ctx, c.ID)
	s.events.Emit(ctx, c.OwnerID, realtime.EventClusterStatusChanged, statusChanged{ClusterID: c.ID, Status: cluster.StatusGenerationFailed})
	s.log.Info("queued generation abandoned", "cluster_id", c.ID, "job_id", job.ID)
	return nil
}

func (s *generationService) Status(dbc dbctx.Context, ownerID, clusterID uuid.UUID) (*GenerationStatus, error) {
	c, err := s.load(dbc, ownerID, clusterID)
	if err != nil {
		return nil, err
	}
	out := &GenerationStatus{ClusterID: c.ID, Status: c.Status}
	if info, err := s.machine.Locks().Get(dbc.Context(), c.ID); err != nil {
		s.log.Warn("read job lock failed", "cluster_id", c.ID, "error", err)
	} else if info != nil {
		p := info.Progress
		out.Progress = &p
	}
	all, err := s.repos.Page.ListByCluster(dbc, c.ID)
	if err != nil {
		return nil, err
	}
	out.Pages.Total = int64(len(all))
	for _, p := range all {
		if p.Status == cluster.PageStatusGenerated {
			out.Pages.Generated++
		}
	}
	if out.Job, err = s.jobs.LatestForEntity(dbc, ownerID, c.ID, jobs.JobTypeClusterGenerate); err != nil {
		return nil, err
	}
	if out.Charges, err = s.repos.Transaction.ListByObject(dbc, c.ID); err != nil {
		return nil, err
	}
	return out, nil
}
