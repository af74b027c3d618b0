package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/data/repos/billing"
	"github.com/yungbote/clusterforge-backend/internal/data/repos/clusters"
	"github.com/yungbote/clusterforge-backend/internal/data/repos/jobs"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type ClusterRepo = clusters.ClusterRepo
type PageRepo = clusters.PageRepo
type SettingsRepo = clusters.SettingsRepo
type ProjectRepo = clusters.ProjectRepo

type AccountRepo = billing.AccountRepo
type TransactionRepo = billing.TransactionRepo

type JobRunRepo = jobs.JobRunRepo

// Set bundles every repo over one gorm handle.
type Set struct {
	Cluster     ClusterRepo
	Page        PageRepo
	Settings    SettingsRepo
	Project     ProjectRepo
	Account     AccountRepo
	Transaction TransactionRepo
	JobRun      JobRunRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Cluster:     clusters.NewClusterRepo(db, log),
		Page:        clusters.NewPageRepo(db, log),
		Settings:    clusters.NewSettingsRepo(db, log),
		Project:     clusters.NewProjectRepo(db, log),
		Account:     billing.NewAccountRepo(db, log),
		Transaction: billing.NewTransactionRepo(db, log),
		JobRun:      jobs.NewJobRunRepo(db, log),
	}
}
