package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// EnsureIndexes adds postgres-only indexes the gorm tags cannot express.
func EnsureIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_page_cluster_status ON page(cluster_id, status) WHERE deleted_at IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_job_run_runnable ON job_run(status, created_at) WHERE deleted_at IS NULL;`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_project_owner_created ON project(owner_id, type) WHERE type IN ('default', 'created') AND deleted_at IS NULL;`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}
