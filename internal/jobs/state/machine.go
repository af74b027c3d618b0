package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	clusterrepo "github.com/yungbote/clusterforge-backend/internal/data/repos/clusters"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

var (
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrConcurrentTransition = errors.New("cluster status changed concurrently")
	ErrJobLocked            = errors.New("cluster is locked by an active phase")
	ErrNotAllowed           = errors.New("operation not allowed in current status")
	ErrNotFound             = errors.New("cluster not found")
)

var edges = map[cluster.Status][]cluster.Status{
	cluster.StatusDraft:            {cluster.StatusStructuring},
	cluster.StatusStructuring:      {cluster.StatusConfiguring, cluster.StatusDraft},
	cluster.StatusConfiguring:      {cluster.StatusGenerating},
	cluster.StatusGenerating:       {cluster.StatusGenerated, cluster.StatusGenerationFailed},
	cluster.StatusGenerationFailed: {cluster.StatusGenerating},
	cluster.StatusGenerated:        {cluster.StatusBuilding},
	cluster.StatusBuilding:         {cluster.StatusBuilt, cluster.StatusBuildFailed},
	cluster.StatusBuildFailed:      {cluster.StatusBuilding},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to cluster.Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// phaseOf maps a status to the active phase it belongs to, if any.
func phaseOf(s cluster.Status) (cluster.Status, bool) {
	switch s {
	case cluster.StatusGenerating, cluster.StatusBuilding:
		return s, true
	}
	return "", false
}

type Machine struct {
	clusters clusterrepo.ClusterRepo
	locks    Locker
	ttl      time.Duration
	log      *logger.Logger
}

func NewMachine(clusters clusterrepo.ClusterRepo, locks Locker, ttl time.Duration, log *logger.Logger) *Machine {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Machine{
		clusters: clusters,
		locks:    locks,
		ttl:      ttl,
		log:      log.With("component", "StateMachine"),
	}
}

func (m *Machine) Locks() Locker { return m.locks }

// Transition moves a cluster from -> to with a conditional update, so two
// writers racing on the same row cannot both succeed.
func (m *Machine) Transition(dbc dbctx.Context, clusterID uuid.UUID, from, to cluster.Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	ok, err := m.clusters.TransitionStatus(dbc, clusterID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: expected %s", ErrConcurrentTransition, from)
	}
	m.log.Debug("cluster transition", "cluster_id", clusterID, "from", from, "to", to)
	return nil
}

// Locked reports whether the job lock for the cluster is currently held.
func (m *Machine) Locked(ctx context.Context, clusterID uuid.UUID) (bool, error) {
	info, err := m.locks.Get(ctx, clusterID)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// BeginPhase acquires the job lock for an active phase. A concurrent request
// for the same cluster gets ErrJobLocked.
func (m *Machine) BeginPhase(ctx context.Context, clusterID, ownerID uuid.UUID, phase cluster.Status) error {
	if _, ok := phaseOf(phase); !ok {
		return fmt.Errorf("%w: %s is not an active phase", ErrInvalidTransition, phase)
	}
	ok, err := m.locks.Acquire(ctx, clusterID, ownerID, m.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrJobLocked
	}
	return nil
}

func (m *Machine) EndPhase(ctx context.Context, clusterID uuid.UUID) {
	if err := m.locks.Release(ctx, clusterID); err != nil {
		m.log.Warn("release lock failed", "cluster_id", clusterID, "error", err)
	}
}

// ClearStaleLock drops a lock left behind by a phase that is no longer
// active. It refuses while the cluster is still in that phase.
func (m *Machine) ClearStaleLock(ctx context.Context, c *cluster.Cluster) error {
	held, err := m.Locked(ctx, c.ID)
	if err != nil || !held {
		return err
	}
	if c.Status.Locked() {
		return ErrJobLocked
	}
	m.log.Warn("clearing stale job lock", "cluster_id", c.ID, "status", c.Status)
	return m.locks.Release(ctx, c.ID)
}

// Retry re-enters the active phase after a failure: GENERATION_FAILED ->
// GENERATING and BUILD_FAILED -> BUILDING. It takes the job lock first and
// releases it again if the status update loses.
func (m *Machine) Retry(dbc dbctx.Context, clusterID uuid.UUID) (cluster.Status, error) {
	c, err := m.clusters.GetByID(dbc, clusterID)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", ErrNotFound
	}
	var to cluster.Status
	switch c.Status {
	case cluster.StatusGenerationFailed:
		to = cluster.StatusGenerating
	case cluster.StatusBuildFailed:
		to = cluster.StatusBuilding
	default:
		if c.Status.Locked() {
			return "", ErrJobLocked
		}
		return "", fmt.Errorf("%w: %s", ErrNotAllowed, c.Status)
	}
	ctx := dbc.Context()
	if err := m.BeginPhase(ctx, clusterID, c.OwnerID, to); err != nil {
		return "", err
	}
	if err := m.Transition(dbc, clusterID, c.Status, to); err != nil {
		m.EndPhase(ctx, clusterID)
		return "", err
	}
	return to, nil
}
