package cluster

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Cluster struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	ProjectID      *uuid.UUID     `gorm:"type:uuid;index" json:"project_id,omitempty"`
	Keyword        string         `gorm:"column:keyword;not null" json:"keyword"`
	Language       string         `gorm:"column:language;not null;default:'en'" json:"language"`
	TargetCountry  string         `gorm:"column:target_country" json:"target_country,omitempty"`
	TargetAudience string         `gorm:"column:target_audience" json:"target_audience,omitempty"`
	TopicsNumber   int            `gorm:"column:topics_number;not null" json:"topics_number"`
	Status         Status         `gorm:"column:status;not null;index" json:"status"`
	SnapshotURI    string         `gorm:"column:snapshot_uri" json:"snapshot_uri,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Cluster) TableName() string { return "cluster" }

func (c *Cluster) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}
	return nil
}

type Project struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	Type      string         `gorm:"column:type;not null;index" json:"type"`
	Name      string         `gorm:"column:name" json:"name"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Project) TableName() string { return "project" }

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
