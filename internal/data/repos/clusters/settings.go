package clusters

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type SettingsRepo interface {
	Create(dbc dbctx.Context, rows []*cluster.ClusterSettings) error
	ListByCluster(dbc dbctx.Context, clusterID uuid.UUID) ([]*cluster.ClusterSettings, error)
	GetByIntent(dbc dbctx.Context, clusterID uuid.UUID, intent cluster.Intent) (*cluster.ClusterSettings, error)
}

type settingsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSettingsRepo(db *gorm.DB, baseLog *logger.Logger) SettingsRepo {
	return &settingsRepo{db: db, log: baseLog.With("repo", "SettingsRepo")}
}

func (r *settingsRepo) Create(dbc dbctx.Context, rows []*cluster.ClusterSettings) error {
	if len(rows) == 0 {
		return nil
	}
	return dbc.Conn(r.db).Create(&rows).Error
}

func (r *settingsRepo) ListByCluster(dbc dbctx.Context, clusterID uuid.UUID) ([]*cluster.ClusterSettings, error) {
	var out []*cluster.ClusterSettings
	err := dbc.Conn(r.db).Where("cluster_id = ?", clusterID).Order("intent ASC").Find(&out).Error
	return out, err
}

func (r *settingsRepo) GetByIntent(dbc dbctx.Context, clusterID uuid.UUID, intent cluster.Intent) (*cluster.ClusterSettings, error) {
	var s cluster.ClusterSettings
	err := dbc.Conn(r.db).Where("cluster_id = ? AND intent = ?", clusterID, intent).Limit(1).Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}
