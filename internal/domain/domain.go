package domain

import (
	"github.com/yungbote/clusterforge-backend/internal/domain/billing"
	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
	"github.com/yungbote/clusterforge-backend/internal/domain/jobs"
)

type (
	Cluster         = cluster.Cluster
	ClusterStatus   = cluster.Status
	ClusterSettings = cluster.ClusterSettings
	ElementParam    = cluster.ElementParam
	MainSourceLink  = cluster.MainSourceLink
	Intent          = cluster.Intent
	Page            = cluster.Page
	Project         = cluster.Project

	Account     = billing.Account
	Transaction = billing.Transaction

	JobRun = jobs.JobRun
)

// Models lists every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		&cluster.Project{},
		&cluster.Cluster{},
		&cluster.Page{},
		&cluster.ClusterSettings{},
		&billing.Account{},
		&billing.Transaction{},
		&jobs.JobRun{},
	}
}
