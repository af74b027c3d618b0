package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/clusterforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
)

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.WithTx(context.Background(), tx)
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now()
	owner := uuid.New()
	clusterID := uuid.New()

	queued := &jobs.JobRun{
		OwnerUserID: owner,
		JobType:     "cluster_generate",
		EntityType:  "cluster",
		EntityID:    &clusterID,
		Status:      jobs.StatusQueued,
		Payload:     datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-3 * time.Hour),
	}
	failed := &jobs.JobRun{
		OwnerUserID: owner,
		JobType:     "cluster_structure",
		EntityType:  "cluster",
		EntityID:    ptrUUID(uuid.New()),
		Status:      jobs.StatusFailed,
		LastErrorAt: ptrTime(now.Add(-2 * time.Hour)),
		Payload:     datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-2 * time.Hour),
	}
	failedNotRetryable := &jobs.JobRun{
		OwnerUserID: owner,
		JobType:     "cluster_generate",
		EntityType:  "cluster",
		EntityID:    ptrUUID(uuid.New()),
		Status:      jobs.StatusFailed,
		LastErrorAt: ptrTime(now.Add(-2 * time.Hour)),
		Payload:     datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-90 * time.Minute),
	}
	stale := &jobs.JobRun{
		OwnerUserID: owner,
		JobType:     "cluster_generate",
		EntityType:  "cluster",
		EntityID:    ptrUUID(uuid.New()),
		Status:      jobs.StatusRunning,
		HeartbeatAt: ptrTime(now.Add(-10 * time.Hour)),
		Payload:     datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-1 * time.Hour),
	}

	created, err := repo.Create(dbc, []*jobs.JobRun{queued, failed, failedNotRetryable, stale})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 4 {
		t.Fatalf("Create: expected 4, got %d", len(created))
	}
	if queued.ID == uuid.Nil {
		t.Fatalf("Create: expected generated id")
	}

	latest, err := repo.GetLatestByEntity(dbc, owner, "cluster", clusterID, "cluster_generate")
	if err != nil || latest == nil || latest.ID != queued.ID {
		t.Fatalf("GetLatestByEntity: err=%v got=%v", err, latest)
	}
	has, err := repo.HasRunnableForEntity(dbc, "cluster", clusterID, "cluster_generate")
	if err != nil || !has {
		t.Fatalf("HasRunnableForEntity: err=%v has=%v", err, has)
	}

	opts := ClaimOptions{
		MaxAttempts:    5,
		RetryDelay:     30 * time.Second,
		StaleRunning:   30 * time.Minute,
		RetryableTypes: []string{"cluster_structure"},
	}
	want := []uuid.UUID{queued.ID, failed.ID, stale.ID}
	for i, id := range want {
		got, err := repo.ClaimNextRunnable(dbc, opts)
		if err != nil {
			t.Fatalf("ClaimNextRunnable #%d: %v", i, err)
		}
		if got == nil || got.ID != id {
			t.Fatalf("ClaimNextRunnable #%d: expected %s got %v", i, id, got)
		}
		if got.Status != jobs.StatusRunning {
			t.Fatalf("ClaimNextRunnable #%d: status=%s", i, got.Status)
		}
	}
	if got, err := repo.ClaimNextRunnable(dbc, opts); err != nil || got != nil {
		t.Fatalf("ClaimNextRunnable: expected nothing, got %v err=%v", got, err)
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{jobs.StatusCanceled}, map[string]interface{}{"status": jobs.StatusCanceled})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsUnlessStatus: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{jobs.StatusCanceled}, map[string]interface{}{"progress": 50})
	if err != nil || ok {
		t.Fatalf("UpdateFieldsUnlessStatus on canceled: ok=%v err=%v", ok, err)
	}
	row, err := repo.GetByID(dbc, queued.ID)
	if err != nil || row == nil || row.Progress != 0 || row.Status != jobs.StatusCanceled {
		t.Fatalf("GetByID: err=%v row=%+v", err, row)
	}
}

func ptrUUID(id uuid.UUID) *uuid.UUID { return &id }

func ptrTime(t time.Time) *time.Time { return &t }

func TestClaimByIDOnlyTakesQueuedRuns(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	run := &jobs.JobRun{
		OwnerUserID: uuid.New(),
		JobType:     "cluster_generate",
		Status:      jobs.StatusQueued,
		Payload:     datatypes.JSON([]byte("{}")),
	}
	if _, err := repo.Create(dbc, []*jobs.JobRun{run}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	claimed, err := repo.ClaimByID(dbc, run.ID)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimByID: err=%v claimed=%v", err, claimed)
	}
	if claimed.Status != jobs.StatusRunning || claimed.Attempts != 1 || claimed.LockedAt == nil {
		t.Fatalf("claimed row: status=%s attempts=%d", claimed.Status, claimed.Attempts)
	}

	again, err := repo.ClaimByID(dbc, run.ID)
	if err != nil || again != nil {
		t.Fatalf("second claim: err=%v claimed=%v", err, again)
	}
}
