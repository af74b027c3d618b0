package testutil

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/domain/billing"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
)

func SeedAccount(tb testing.TB, tx *gorm.DB, ownerID uuid.UUID, balance int64) *billing.Account {
	tb.Helper()
	acc := &billing.Account{OwnerID: ownerID, Balance: balance}
	if err := tx.Create(acc).Error; err != nil {
		tb.Fatalf("seed account: %v", err)
	}
	return acc
}

func SeedProject(tb testing.TB, tx *gorm.DB, ownerID uuid.UUID, typ string) *cluster.Project {
	tb.Helper()
	p := &cluster.Project{OwnerID: ownerID, Type: typ, Name: typ}
	if err := tx.Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

func SeedCluster(tb testing.TB, tx *gorm.DB, ownerID uuid.UUID, status cluster.Status, topics int) *cluster.Cluster {
	tb.Helper()
	c := &cluster.Cluster{
		OwnerID:      ownerID,
		Keyword:      "coffee brewing",
		Language:     "en",
		TopicsNumber: topics,
		Status:       status,
	}
	if err := tx.Create(c).Error; err != nil {
		tb.Fatalf("seed cluster: %v", err)
	}
	return c
}

// SeedPages creates n draft pages: the first is the root, the rest its children.
func SeedPages(tb testing.TB, tx *gorm.DB, clusterID uuid.UUID, n int, intent cluster.Intent) []*cluster.Page {
	tb.Helper()
	out := make([]*cluster.Page, 0, n)
	var rootID *uuid.UUID
	for i := 0; i < n; i++ {
		p := &cluster.Page{
			ID:           uuid.New(),
			ClusterID:    clusterID,
			Topic:        "Topic " + string(rune('A'+i%26)) + uuid.NewString()[:4],
			Position:     i,
			SearchIntent: intent,
			H2Count:      3,
			Keywords:     cluster.EncodeStrings([]string{"brew", "coffee"}),
			Status:       cluster.PageStatusDraft,
		}
		if rootID != nil {
			p.ParentID = rootID
		}
		if err := tx.Create(p).Error; err != nil {
			tb.Fatalf("seed page: %v", err)
		}
		if rootID == nil {
			id := p.ID
			rootID = &id
		}
		out = append(out, p)
	}
	return out
}
