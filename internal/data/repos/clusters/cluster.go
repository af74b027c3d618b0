package clusters

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type ClusterRepo interface {
	Create(dbc dbctx.Context, c *cluster.Cluster) (*cluster.Cluster, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*cluster.Cluster, error)
	GetForOwner(dbc dbctx.Context, ownerID, id uuid.UUID) (*cluster.Cluster, error)
	// LockByID reads the row FOR UPDATE where the dialect supports it.
	LockByID(dbc dbctx.Context, id uuid.UUID) (*cluster.Cluster, error)
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, from, to cluster.Status) (bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type clusterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClusterRepo(db *gorm.DB, baseLog *logger.Logger) ClusterRepo {
	return &clusterRepo{db: db, log: baseLog.With("repo", "ClusterRepo")}
}

func (r *clusterRepo) Create(dbc dbctx.Context, c *cluster.Cluster) (*cluster.Cluster, error) {
	if c == nil {
		return nil, errors.New("nil cluster")
	}
	if err := dbc.Conn(r.db).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r *clusterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*cluster.Cluster, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c cluster.Cluster
	err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *clusterRepo) GetForOwner(dbc dbctx.Context, ownerID, id uuid.UUID) (*cluster.Cluster, error) {
	c, err := r.GetByID(dbc, id)
	if err != nil || c == nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, nil
	}
	return c, nil
}

func (r *clusterRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*cluster.Cluster, error) {
	q := dbc.Conn(r.db)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c cluster.Cluster
	if err := q.Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *clusterRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, from, to cluster.Status) (bool, error) {
	res := dbc.Conn(r.db).
		Model(&cluster.Cluster{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *clusterRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).Model(&cluster.Cluster{}).Where("id = ?", id).Updates(updates).Error
}
