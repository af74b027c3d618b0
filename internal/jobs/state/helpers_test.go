package state

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
)

type fixture struct {
	t  *testing.T
	db *gorm.DB
}

func (h *fixture) cluster(status cluster.Status) *cluster.Cluster {
	return testutil.SeedCluster(h.t, h.db, uuid.New(), status, 3)
}

func (h *fixture) reload(id uuid.UUID) *cluster.Cluster {
	var c cluster.Cluster
	if err := h.db.Where("id = ?", id).First(&c).Error; err != nil {
		h.t.Fatalf("reload cluster: %v", err)
	}
	return &c
}
