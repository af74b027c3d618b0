package cluster

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Page is a persisted topic node together with its generation state.
// Its ID doubles as the topic node id.
type Page struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ClusterID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"cluster_id"`
	ParentID        *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Topic           string         `gorm:"column:topic;not null" json:"topic"`
	Position        int            `gorm:"column:position;not null;default:0" json:"position"`
	Keywords        datatypes.JSON `gorm:"column:keywords;type:jsonb" json:"keywords,omitempty"`
	SearchIntent    Intent         `gorm:"column:search_intent;not null;default:'informational'" json:"search_intent"`
	Category        string         `gorm:"column:category" json:"category,omitempty"`
	H2Count         int            `gorm:"column:h2_count;not null;default:0" json:"h2_count"`
	WordsPerSection int            `gorm:"column:words_per_section;not null;default:0" json:"words_per_section"`
	ResearchSummary string         `gorm:"column:research_summary;type:text" json:"research_summary,omitempty"`
	Status          string         `gorm:"column:status;not null;index" json:"status"`
	ReleaseURIs     datatypes.JSON `gorm:"column:release_uris;type:jsonb" json:"release_uris,omitempty"`
	OriginalURI     string         `gorm:"column:original_uri" json:"original_uri,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Page) TableName() string { return "page" }

func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PageStatusDraft
	}
	return nil
}

func (p *Page) KeywordList() []string {
	return decodeStrings(p.Keywords)
}

func (p *Page) ReleaseList() []string {
	return decodeStrings(p.ReleaseURIs)
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func EncodeStrings(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return datatypes.JSON(b)
}
