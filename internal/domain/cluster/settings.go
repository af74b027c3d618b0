package cluster

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ClusterSettings holds the element configuration for one intent of a cluster.
type ClusterSettings struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ClusterID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_cluster_settings_intent" json:"cluster_id"`
	Intent         Intent         `gorm:"column:intent;not null;uniqueIndex:idx_cluster_settings_intent" json:"intent"`
	Elements       datatypes.JSON `gorm:"column:elements;type:jsonb" json:"elements"`
	GeneralStyle   datatypes.JSON `gorm:"column:general_style;type:jsonb" json:"general_style,omitempty"`
	MainSourceLink datatypes.JSON `gorm:"column:main_source_link;type:jsonb" json:"main_source_link,omitempty"`
	Geolocation    string         `gorm:"column:geolocation" json:"geolocation,omitempty"`
	Author         datatypes.JSON `gorm:"column:author;type:jsonb" json:"author,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ClusterSettings) TableName() string { return "cluster_settings" }

func (s *ClusterSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ElementParam configures one placeholder element of a page template.
type ElementParam struct {
	Type      string            `json:"type" yaml:"type"`
	Position  int               `json:"position" yaml:"position"`
	Enabled   bool              `json:"enabled" yaml:"enabled"`
	ClassName string            `json:"class_name,omitempty" yaml:"class_name,omitempty"`
	Style     map[string]string `json:"style,omitempty" yaml:"style,omitempty"`
	Settings  map[string]any    `json:"settings,omitempty" yaml:"settings,omitempty"`
}

const (
	SourceModeAll  = "all"
	SourceModeHead = "head"
)

// MainSourceLink is the user-supplied link woven into generated head content.
type MainSourceLink struct {
	Link    string `json:"link"`
	Keyword string `json:"keyword"`
	Mode    string `json:"mode"`
}

type Author struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

func (s *ClusterSettings) ElementParams() ([]ElementParam, error) {
	if len(s.Elements) == 0 {
		return nil, nil
	}
	var out []ElementParam
	if err := json.Unmarshal(s.Elements, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ClusterSettings) Source() *MainSourceLink {
	if len(s.MainSourceLink) == 0 {
		return nil
	}
	var link MainSourceLink
	if err := json.Unmarshal(s.MainSourceLink, &link); err != nil || link.Link == "" {
		return nil
	}
	if link.Mode == "" {
		link.Mode = SourceModeAll
	}
	return &link
}

func (s *ClusterSettings) AuthorInfo() *Author {
	if len(s.Author) == 0 {
		return nil
	}
	var a Author
	if err := json.Unmarshal(s.Author, &a); err != nil || a.Name == "" {
		return nil
	}
	return &a
}

func (s *ClusterSettings) Style() map[string]string {
	if len(s.GeneralStyle) == 0 {
		return nil
	}
	out := map[string]string{}
	_ = json.Unmarshal(s.GeneralStyle, &out)
	return out
}
