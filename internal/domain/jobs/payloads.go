package jobs

import (
	"github.com/google/uuid"

	"github.com/yungbote/clusterforge-backend/internal/domain/cluster"
)

const (
	JobTypeClusterGenerate  = "cluster_generate"
	JobTypeClusterStructure = "cluster_structure"

	EntityTypeCluster = "cluster"
)

// GeneratePayload is the serialisable input of a cluster_generate run.
type GeneratePayload struct {
	ClusterID  uuid.UUID   `json:"cluster_id"`
	OwnerID    uuid.UUID   `json:"owner_id"`
	ChargeTxID uuid.UUID   `json:"charge_tx_id"`
	PageIDs    []uuid.UUID `json:"page_ids"`
	RequestID  string      `json:"request_id,omitempty"`
}

// StructurePayload is the serialisable input of a cluster_structure run.
type StructurePayload struct {
	ClusterID      uuid.UUID               `json:"cluster_id"`
	OwnerID        uuid.UUID               `json:"owner_id"`
	// Intent, when set, overrides the profiled intent of every page.
	Intent         cluster.Intent          `json:"intent,omitempty"`
	MainSourceLink *cluster.MainSourceLink `json:"main_source_link,omitempty"`
	RequestID      string                  `json:"request_id,omitempty"`
}
