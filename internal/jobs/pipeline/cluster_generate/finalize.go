package cluster_generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/billing"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/generation/engine"
	"github.com/yungbote/clusterforge-backend/internal/jobs/progress"
	jobrt "github.com/yungbote/clusterforge-backend/internal/jobs/runtime"
	"github.com/yungbote/clusterforge-backend/internal/jobs/state"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
	"github.com/yungbote/clusterforge-backend/internal/platform/objectstore"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
)

const (
	snapshotName     = "snapshot.json"
	finalizeAttempts = 3
)

// Outcome is stored as the job run result.
type Outcome struct {
	ClusterID     uuid.UUID      `json:"cluster_id"`
	Status        cluster.Status `json:"status"`
	Total         int            `json:"total"`
	Processed     int            `json:"processed"`
	Failed        []uuid.UUID    `json:"failed,omitempty"`
	Retried       int            `json:"retried"`
	RefundedCents int64          `json:"refunded_cents"`
	SnapshotURI   string         `json:"snapshot_uri,omitempty"`
}

type statusEvent struct {
	ClusterID uuid.UUID      `json:"cluster_id"`
	Status    cluster.Status `json:"status"`
}

type errorEvent struct {
	ClusterID uuid.UUID `json:"cluster_id"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
}

// finalize settles the run exactly once: the GENERATING -> final update is
// conditional, so a second caller loses and changes nothing.
func (p *Pipeline) finalize(jc *jobrt.Context, c *cluster.Cluster, in jobs.GeneratePayload, pl *plan, rep engine.Report, jobErr error, reporter *progress.Reporter) (*Outcome, error) {
	ctx := context.WithoutCancel(jc.Ctx)
	log := p.log.With("cluster_id", c.ID)

	final := cluster.StatusGenerated
	if jobErr != nil || len(rep.Processed) == 0 {
		final = cluster.StatusGenerationFailed
	}
	out := &Outcome{
		ClusterID: c.ID,
		Status:    final,
		Total:     rep.Total,
		Processed: len(rep.Processed),
		Failed:    rep.Failed,
		Retried:   rep.Retried,
	}

	err := p.settle(ctx, log, "finalize", func(dbc dbctx.Context) error {
		if err := p.deps.Machine.Transition(dbc, c.ID, cluster.StatusGenerating, final); err != nil {
			return err
		}
		refunded, err := p.refund(dbc, c.ID, in)
		if err != nil {
			return err
		}
		out.RefundedCents = refunded
		if final == cluster.StatusGenerated {
			return p.settleProject(dbc, c)
		}
		return nil
	})
	if err != nil {
		reporter.Close()
		p.abandon(ctx, c, in, err)
		return nil, err
	}

	if final == cluster.StatusGenerated && pl != nil && pl.hasImages() {
		uri, err := p.snapshot(ctx, c)
		if err != nil {
			log.Warn("snapshot failed", "error", err)
			p.deps.Events.Emit(ctx, c.OwnerID, realtime.EventError, errorEvent{ClusterID: c.ID, Stage: "snapshot", Message: err.Error()})
		} else {
			out.SnapshotURI = uri
		}
	}

	p.deps.Events.Emit(ctx, c.OwnerID, realtime.EventClusterStatusChanged, statusEvent{ClusterID: c.ID, Status: final})
	p.deps.Events.Emit(ctx, c.OwnerID, realtime.EventClusterGenerated, out)

	reporter.Set(100, "finished")
	reporter.Close()
	p.deps.Machine.EndPhase(ctx, c.ID)
	log.Info("generation finalized", "status", final, "processed", out.Processed, "failed", len(out.Failed), "refunded_cents", out.RefundedCents)
	return out, nil
}

// settle runs fn in a transaction, retrying transient failures. A lost or
// invalid transition is final.
func (p *Pipeline) settle(ctx context.Context, log *logger.Logger, stage string, fn func(dbctx.Context) error) error {
	var err error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		err = p.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(dbctx.Context{Ctx: ctx, Tx: tx})
		})
		if err == nil || errors.Is(err, state.ErrConcurrentTransition) || errors.Is(err, state.ErrInvalidTransition) {
			return err
		}
		log.Warn("settle attempt failed", "stage", stage, "attempt", attempt, "error", err)
		if attempt < finalizeAttempts {
			time.Sleep(time.Duration(attempt) * p.cfg.FinalizeBackoff)
		}
	}
	return err
}

// abandon is the fallback when finalize cannot commit: the cluster fails
// with its drafts refunded and the phase lock is released so the owner can
// request generation again.
func (p *Pipeline) abandon(ctx context.Context, c *cluster.Cluster, in jobs.GeneratePayload, cause error) {
	log := p.log.With("cluster_id", c.ID)
	if errors.Is(cause, state.ErrConcurrentTransition) || errors.Is(cause, state.ErrInvalidTransition) {
		// Another finalizer owns the cluster now.
		log.Warn("cluster already left generating", "error", cause)
		return
	}
	var refunded int64
	err := p.settle(ctx, log, "abandon", func(dbc dbctx.Context) error {
		if err := p.deps.Machine.Transition(dbc, c.ID, cluster.StatusGenerating, cluster.StatusGenerationFailed); err != nil {
			return err
		}
		r, err := p.refund(dbc, c.ID, in)
		refunded = r
		return err
	})
	p.deps.Machine.EndPhase(ctx, c.ID)
	if err != nil {
		log.Error("abandon failed", "error", err, "cause", cause)
		return
	}
	p.deps.Events.Emit(ctx, c.OwnerID, realtime.EventClusterStatusChanged, statusEvent{ClusterID: c.ID, Status: cluster.StatusGenerationFailed})
	p.deps.Events.Emit(ctx, c.OwnerID, realtime.EventError, errorEvent{ClusterID: c.ID, Stage: "finalize", Message: cause.Error()})
	log.Warn("generation abandoned", "cause", cause, "refunded_cents", refunded)
}

// refund returns the charge for every charged page still in draft.
func (p *Pipeline) refund(dbc dbctx.Context, clusterID uuid.UUID, in jobs.GeneratePayload) (int64, error) {
	if in.ChargeTxID == uuid.Nil {
		return 0, nil
	}
	drafts, err := p.deps.Repos.Page.ListByStatus(dbc, clusterID, cluster.PageStatusDraft)
	if err != nil {
		return 0, err
	}
	charged := make(map[uuid.UUID]bool, len(in.PageIDs))
	for _, id := range in.PageIDs {
		charged[id] = true
	}
	failed := 0
	for _, pg := range drafts {
		if len(charged) == 0 || charged[pg.ID] {
			failed++
		}
	}
	res, err := p.deps.Ledger.Refund(dbc, in.ChargeTxID, failed)
	if errors.Is(err, billing.ErrAlreadySettled) {
		p.log.Warn("charge already settled", "cluster_id", clusterID, "transaction_id", in.ChargeTxID)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("refund: %w", err)
	}
	return res.Refunded, nil
}

// settleProject moves a generated cluster out of a default project into the
// owner's created project. Custom projects keep their clusters.
func (p *Pipeline) settleProject(dbc dbctx.Context, c *cluster.Cluster) error {
	if c.ProjectID != nil {
		proj, err := p.deps.Repos.Project.GetByID(dbc, *c.ProjectID)
		if err != nil {
			return err
		}
		if proj != nil && proj.Type != cluster.ProjectTypeDefault {
			return nil
		}
	}
	created, err := p.deps.Repos.Project.GetOrCreate(dbc, c.OwnerID, cluster.ProjectTypeCreated)
	if err != nil {
		return err
	}
	return p.deps.Repos.Cluster.UpdateFields(dbc, c.ID, map[string]interface{}{"project_id": created.ID})
}

type snapshotManifest struct {
	ClusterID uuid.UUID `json:"cluster_id"`
	TakenAt   time.Time `json:"taken_at"`
	Objects   []string  `json:"objects"`
}

// snapshot records a manifest of every object the cluster owns.
func (p *Pipeline) snapshot(ctx context.Context, c *cluster.Cluster) (string, error) {
	prefix := objectstore.ClusterPrefix(c.OwnerID, c.ID)
	keys, err := p.deps.Store.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("list objects: %w", err)
	}
	objects := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != prefix+snapshotName {
			objects = append(objects, k)
		}
	}
	raw, err := json.Marshal(snapshotManifest{ClusterID: c.ID, TakenAt: time.Now().UTC(), Objects: objects})
	if err != nil {
		return "", err
	}
	uri, err := p.deps.Store.Save(ctx, prefix+snapshotName, raw)
	if err != nil {
		return "", fmt.Errorf("save manifest: %w", err)
	}
	if err := p.deps.Repos.Cluster.UpdateFields(dbctx.Context{Ctx: ctx}, c.ID, map[string]interface{}{"snapshot_uri": uri}); err != nil {
		return "", err
	}
	return uri, nil
}
