package clusters

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type ProjectRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*cluster.Project, error)
	// GetOrCreate returns the owner's single project of the given type.
	GetOrCreate(dbc dbctx.Context, ownerID uuid.UUID, typ string) (*cluster.Project, error)
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*cluster.Project, error) {
	var p cluster.Project
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		return nil, nil
	}
	return &p, nil
}

func (r *projectRepo) GetOrCreate(dbc dbctx.Context, ownerID uuid.UUID, typ string) (*cluster.Project, error) {
	conn := dbc.Conn(r.db)
	var p cluster.Project
	if err := conn.Where("owner_id = ? AND type = ?", ownerID, typ).Order("created_at ASC").Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID != uuid.Nil {
		return &p, nil
	}
	p = cluster.Project{OwnerID: ownerID, Type: typ, Name: typ}
	if err := conn.Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
