package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/billing"
	"github.com/yungbote/clusterforge-backend/internal/data/repos"
	"github.com/yungbote/clusterforge-backend/internal/data/repos/testutil"
	domainbilling "github.com/yungbote/clusterforge-backend/internal/domain/billing"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/jobs/state"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/realtime"
	"github.com/yungbote/clusterforge-backend/internal/realtime/bus"
)

type recordingDispatcher struct {
	jobs []uuid.UUID
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job *jobs.JobRun) error {
	d.jobs = append(d.jobs, job.ID)
	return d.err
}

type serviceHarness struct {
	db         *gorm.DB
	repos      repos.Set
	locks      *state.MemoryLocker
	machine    *state.Machine
	bus        *bus.MemoryBus
	dispatcher *recordingDispatcher
	jobs       JobService
	gen        GenerationService
	clusters   ClusterService
	owner      uuid.UUID
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	h := &serviceHarness{
		db:         db,
		repos:      repos.NewSet(db, log),
		locks:      state.NewMemoryLocker(),
		bus:        bus.NewMemoryBus(),
		dispatcher: &recordingDispatcher{},
		owner:      uuid.New(),
	}
	events := realtime.NewEmitter(h.bus, log)
	h.machine = state.NewMachine(h.repos.Cluster, h.locks, time.Hour, log)
	ledger := billing.NewLedger(db, h.repos.Account, h.repos.Transaction, 0, nil, log)
	h.jobs = NewJobService(db, log, h.repos.JobRun, events, h.dispatcher)
	h.gen = NewGenerationService(db, log, h.repos, ledger, h.machine, h.jobs, events)
	h.clusters = NewClusterService(db, log, h.repos, h.jobs)
	return h
}

func (h *serviceHarness) dbc() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func (h *serviceHarness) seed(t *testing.T, balance int64, status cluster.Status, pages int) *cluster.Cluster {
	t.Helper()
	testutil.SeedAccount(t, h.db, h.owner, balance)
	c := testutil.SeedCluster(t, h.db, h.owner, status, pages)
	testutil.SeedPages(t, h.db, c.ID, pages, cluster.IntentInformational)
	return c
}

func (h *serviceHarness) status(t *testing.T, id uuid.UUID) cluster.Status {
	t.Helper()
	c, err := h.repos.Cluster.GetByID(h.dbc(), id)
	require.NoError(t, err)
	return c.Status
}

func (h *serviceHarness) balance(t *testing.T) int64 {
	t.Helper()
	acc, err := h.repos.Account.Get(h.dbc(), h.owner)
	require.NoError(t, err)
	return acc.Balance
}

func TestRequestChargesAndQueues(t *testing.T) {
	h := newServiceHarness(t)
	c := h.seed(t, 10_000, cluster.StatusConfiguring, 3)

	ticket, err := h.gen.Request(h.dbc(), h.owner, c.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, ticket.Pages)
	assert.Equal(t, int64(3*billing.DefaultPageCents), ticket.Charge.Amount)
	assert.Equal(t, domainbilling.TxStatusPending, ticket.Charge.Status)
	require.NotNil(t, ticket.Charge.JobRunID)
	assert.Equal(t, ticket.Job.ID, *ticket.Charge.JobRunID)
	assert.Equal(t, cluster.StatusGenerating, h.status(t, c.ID))
	assert.Equal(t, int64(10_000-3*billing.DefaultPageCents), h.balance(t))
	assert.Equal(t, []uuid.UUID{ticket.Job.ID}, h.dispatcher.jobs)

	run, err := h.repos.JobRun.GetByID(h.dbc(), ticket.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusQueued, run.Status)
	assert.Equal(t, jobs.JobTypeClusterGenerate, run.JobType)
	assert.JSONEq(t, `"`+ticket.Charge.ID.String()+`"`, jsonField(t, run.Payload, "charge_tx_id"))

	held, err := h.machine.Locked(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Len(t, h.bus.Events(realtime.EventClusterStatusChanged), 1)

	_, err = h.gen.Request(h.dbc(), h.owner, c.ID)
	assert.ErrorIs(t, err, state.ErrJobLocked)
}

func TestRequestInsufficientBalanceLeavesNoTrace(t *testing.T) {
	h := newServiceHarness(t)
	c := h.seed(t, 100, cluster.StatusConfiguring, 3)

	_, err := h.gen.Request(h.dbc(), h.owner, c.ID)
	require.ErrorIs(t, err, billing.ErrInsufficientBalance)

	assert.Equal(t, cluster.StatusConfiguring, h.status(t, c.ID))
	assert.Equal(t, int64(100), h.balance(t))
	latest, err := h.jobs.LatestForEntity(h.dbc(), h.owner, c.ID, jobs.JobTypeClusterGenerate)
	require.NoError(t, err)
	assert.Nil(t, latest)
	txs, err := h.repos.Transaction.ListByObject(h.dbc(), c.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
	held, err := h.machine.Locked(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, held)
	assert.Empty(t, h.dispatcher.jobs)
}

func TestRequestRejections(t *testing.T) {
	t.Run("wrong status", func(t *testing.T) {
		h := newServiceHarness(t)
		c := h.seed(t, 10_000, cluster.StatusDraft, 2)
		_, err := h.gen.Request(h.dbc(), h.owner, c.ID)
		assert.ErrorIs(t, err, state.ErrNotAllowed)
	})
	t.Run("nothing left to generate", func(t *testing.T) {
		h := newServiceHarness(t)
		c := h.seed(t, 10_000, cluster.StatusGenerationFailed, 2)
		require.NoError(t, h.db.Model(&cluster.Page{}).Where("cluster_id = ?", c.ID).Update("status", cluster.PageStatusGenerated).Error)
		_, err := h.gen.Request(h.dbc(), h.owner, c.ID)
		assert.ErrorIs(t, err, ErrAlreadyGenerated)
	})
	t.Run("other owner", func(t *testing.T) {
		h := newServiceHarness(t)
		c := h.seed(t, 10_000, cluster.StatusConfiguring, 2)
		_, err := h.gen.Request(h.dbc(), uuid.New(), c.ID)
		assert.ErrorIs(t, err, state.ErrNotFound)
	})
	t.Run("stale lock is cleared", func(t *testing.T) {
		h := newServiceHarness(t)
		c := h.seed(t, 10_000, cluster.StatusGenerationFailed, 2)
		ok, err := h.locks.Acquire(context.Background(), c.ID, h.owner, time.Hour)
		require.NoError(t, err)
		require.True(t, ok)
		_, err = h.gen.Request(h.dbc(), h.owner, c.ID)
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusGenerating, h.status(t, c.ID))
	})
}

func TestRequestRetryChargesOnlyDrafts(t *testing.T) {
	h := newServiceHarness(t)
	c := h.seed(t, 10_000, cluster.StatusGenerationFailed, 3)
	all, err := h.repos.Page.ListByCluster(h.dbc(), c.ID)
	require.NoError(t, err)
	require.NoError(t, h.repos.Page.MarkGenerated(h.dbc(), all[0].ID, "o", "r"))

	ticket, err := h.gen.Request(h.dbc(), h.owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ticket.Pages)
	assert.Equal(t, int64(2*billing.DefaultPageCents), ticket.Charge.Amount)
	assert.Equal(t, cluster.StatusGenerating, h.status(t, c.ID))
	held, err := h.machine.Locked(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, held)

	_, err = h.gen.Request(h.dbc(), h.owner, c.ID)
	assert.ErrorIs(t, err, state.ErrJobLocked)
}

func TestRequestRetryInsufficientBalanceStaysFailed(t *testing.T) {
	h := newServiceHarness(t)
	c := h.seed(t, 100, cluster.StatusGenerationFailed, 2)

	_, err := h.gen.Request(h.dbc(), h.owner, c.ID)
	require.ErrorIs(t, err, billing.ErrInsufficientBalance)

	assert.Equal(t, cluster.StatusGenerationFailed, h.status(t, c.ID))
	held, err := h.machine.Locked(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestCancelQueuedRunSettlesImmediately(t *testing.T) {
	h := newServiceHarness(t)
	c := h.seed(t, 10_000, cluster.StatusConfiguring, 2)
	ticket, err := h.gen.Request(h.dbc(), h.owner, c.ID)
	require.NoError(t, err)

	job, err := h.gen.Cancel(h.dbc(), h.owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCanceled, job.Status)

	assert.Equal(t, cluster.StatusGenerationFailed, h.status(t, c.ID))
	assert.Equal(t, int64(10_000), h.balance(t))
	tx, err := h.repos.Transaction.GetByID(h.dbc(), ticket.Charge.ID)
	require.NoError(t, err)
	assert.Equal(t, domainbilling.TxStatusCancelled, tx.Status)
	held, err := h.machine.Locked(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, held)

	_, err = h.gen.Cancel(h.dbc(), h.owner, c.ID)
	assert.ErrorIs(t, err, state.ErrNotAllowed)
}

func TestCancelRunningRunLeavesSettlementToWorker(t *testing.T) {
	h := newServiceHarness(t)
	c := h.seed(t, 10_000, cluster.StatusConfiguring, 2)
	ticket, err := h.gen.Request(h.dbc(), h.owner, c.ID)
	require.NoError(t, err)
	require.NoError(t, h.repos.JobRun.UpdateFields(h.dbc(), ticket.Job.ID, map[string]interface{}{"status": jobs.StatusRunning}))

	_, err = h.gen.Cancel(h.dbc(), h.owner, c.ID)
	require.NoError(t, err)

	assert.Equal(t, cluster.StatusGenerating, h.status(t, c.ID))
	assert.Equal(t, int64(10_000-2*billing.DefaultPageCents), h.balance(t))
	run, err := h.repos.JobRun.GetByID(h.dbc(), ticket.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCanceled, run.Status)
}

func TestCancelFinishedRun(t *testing.T) {
	h := newServiceHarness(t)
	c := h.seed(t, 10_000, cluster.StatusConfiguring, 2)
	ticket, err := h.gen.Request(h.dbc(), h.owner, c.ID)
	require.NoError(t, err)
	require.NoError(t, h.repos.JobRun.UpdateFields(h.dbc(), ticket.Job.ID, map[string]interface{}{"status": jobs.StatusSucceeded}))

	_, err = h.gen.Cancel(h.dbc(), h.owner, c.ID)
	assert.ErrorIs(t, err, ErrJobFinished)
}

func TestStatusReportsLockProgressAndPages(t *testing.T) {
	h := newServiceHarness(t)
	c := h.seed(t, 10_000, cluster.StatusConfiguring, 3)

	st, err := h.gen.Status(h.dbc(), h.owner, c.ID)
	require.NoError(t, err)
	assert.Nil(t, st.Progress)
	assert.Nil(t, st.Job)
	assert.Equal(t, PageCounts{Total: 3}, st.Pages)

	ticket, err := h.gen.Request(h.dbc(), h.owner, c.ID)
	require.NoError(t, err)
	require.NoError(t, h.locks.SetProgress(context.Background(), c.ID, 42))

	st, err = h.gen.Status(h.dbc(), h.owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cluster.StatusGenerating, st.Status)
	require.NotNil(t, st.Progress)
	assert.InDelta(t, 42, *st.Progress, 1e-9)
	require.NotNil(t, st.Job)
	assert.Equal(t, ticket.Job.ID, st.Job.ID)
	require.Len(t, st.Charges, 1)
	assert.Equal(t, ticket.Charge.ID, st.Charges[0].ID)
	assert.Equal(t, int64(3*billing.DefaultPageCents), st.Charges[0].Amount)
}

func TestDispatchFailureMarksRunFailed(t *testing.T) {
	h := newServiceHarness(t)
	h.dispatcher.err = errors.New("temporal unavailable")
	c := h.seed(t, 10_000, cluster.StatusConfiguring, 1)

	ticket, err := h.gen.Request(h.dbc(), h.owner, c.ID)
	require.Error(t, err)
	require.NotNil(t, ticket)
	run, err := h.repos.JobRun.GetByID(h.dbc(), ticket.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, run.Status)
	assert.Equal(t, "dispatch", run.Stage)
	assert.Equal(t, cluster.StatusGenerationFailed, h.status(t, c.ID))
	assert.Equal(t, int64(10_000), h.balance(t))
}
