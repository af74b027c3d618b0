package clusters

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type PageRepo interface {
	Create(dbc dbctx.Context, pages []*cluster.Page) ([]*cluster.Page, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*cluster.Page, error)
	ListByCluster(dbc dbctx.Context, clusterID uuid.UUID) ([]*cluster.Page, error)
	ListByStatus(dbc dbctx.Context, clusterID uuid.UUID, status string) ([]*cluster.Page, error)
	CountByStatus(dbc dbctx.Context, clusterID uuid.UUID, status string) (int64, error)
	// MarkGenerated appends releaseURI and moves a draft page to generated.
	MarkGenerated(dbc dbctx.Context, id uuid.UUID, originalURI, releaseURI string) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type pageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPageRepo(db *gorm.DB, baseLog *logger.Logger) PageRepo {
	return &pageRepo{db: db, log: baseLog.With("repo", "PageRepo")}
}

func (r *pageRepo) Create(dbc dbctx.Context, pages []*cluster.Page) ([]*cluster.Page, error) {
	if len(pages) == 0 {
		return []*cluster.Page{}, nil
	}
	if err := dbc.Conn(r.db).Create(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

func (r *pageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*cluster.Page, error) {
	var p cluster.Page
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *pageRepo) ListByCluster(dbc dbctx.Context, clusterID uuid.UUID) ([]*cluster.Page, error) {
	var out []*cluster.Page
	err := dbc.Conn(r.db).
		Where("cluster_id = ?", clusterID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

func (r *pageRepo) ListByStatus(dbc dbctx.Context, clusterID uuid.UUID, status string) ([]*cluster.Page, error) {
	var out []*cluster.Page
	err := dbc.Conn(r.db).
		Where("cluster_id = ? AND status = ?", clusterID, status).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

func (r *pageRepo) CountByStatus(dbc dbctx.Context, clusterID uuid.UUID, status string) (int64, error) {
	var n int64
	err := dbc.Conn(r.db).
		Model(&cluster.Page{}).
		Where("cluster_id = ? AND status = ?", clusterID, status).
		Count(&n).Error
	return n, err
}

func (r *pageRepo) MarkGenerated(dbc dbctx.Context, id uuid.UUID, originalURI, releaseURI string) error {
	conn := dbc.Conn(r.db)
	var p cluster.Page
	if err := conn.Where("id = ?", id).Limit(1).Find(&p).Error; err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		return gorm.ErrRecordNotFound
	}
	releases := append(p.ReleaseList(), releaseURI)
	return conn.Model(&cluster.Page{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       cluster.PageStatusGenerated,
			"original_uri": originalURI,
			"release_uris": cluster.EncodeStrings(releases),
			"updated_at":   time.Now(),
		}).Error
}

func (r *pageRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).Model(&cluster.Page{}).Where("id = ?", id).Updates(updates).Error
}
