package clusters

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/clusterforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
)

func TestClusterTransitionStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.WithTx(context.Background(), tx)
	repo := NewClusterRepo(db, testutil.Logger(t))

	c := testutil.SeedCluster(t, tx, uuid.New(), cluster.StatusConfiguring, 3)

	ok, err := repo.TransitionStatus(dbc, c.ID, cluster.StatusConfiguring, cluster.StatusGenerating)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionStatus(dbc, c.ID, cluster.StatusConfiguring, cluster.StatusGenerating)
	require.NoError(t, err)
	assert.False(t, ok, "second transition from a stale status must not apply")

	got, err := repo.LockByID(dbc, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cluster.StatusGenerating, got.Status)

	other, err := repo.GetForOwner(dbc, uuid.New(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestPageMarkGenerated(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.WithTx(context.Background(), tx)
	repo := NewPageRepo(db, testutil.Logger(t))

	c := testutil.SeedCluster(t, tx, uuid.New(), cluster.StatusGenerating, 3)
	pages := testutil.SeedPages(t, tx, c.ID, 3, cluster.IntentInformational)

	require.NoError(t, repo.MarkGenerated(dbc, pages[1].ID, "mem://orig", "mem://release_v1"))
	require.NoError(t, repo.MarkGenerated(dbc, pages[1].ID, "mem://orig", "mem://release_v2"))

	p, err := repo.GetByID(dbc, pages[1].ID)
	require.NoError(t, err)
	assert.Equal(t, cluster.PageStatusGenerated, p.Status)
	assert.Equal(t, []string{"mem://release_v1", "mem://release_v2"}, p.ReleaseList())

	drafts, err := repo.CountByStatus(dbc, c.ID, cluster.PageStatusDraft)
	require.NoError(t, err)
	assert.EqualValues(t, 2, drafts)

	listed, err := repo.ListByCluster(dbc, c.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, pages[0].ID, listed[0].ID)
}

func TestProjectGetOrCreate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.WithTx(context.Background(), tx)
	repo := NewProjectRepo(db, testutil.Logger(t))

	owner := uuid.New()
	a, err := repo.GetOrCreate(dbc, owner, cluster.ProjectTypeCreated)
	require.NoError(t, err)
	b, err := repo.GetOrCreate(dbc, owner, cluster.ProjectTypeCreated)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}
