package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusCancelled = "cancelled"

	TxKindClusterPages = "cluster_pages"
)

// Account holds an owner's balance in cents.
type Account struct {
	OwnerID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"owner_id"`
	Balance   int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string { return "account" }

// Transaction is a charge made before a generation run. Refunds are recorded
// on the same row.
type Transaction struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	ObjectID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"object_id"`
	JobRunID  *uuid.UUID     `gorm:"type:uuid;uniqueIndex" json:"job_run_id,omitempty"`
	Kind      string         `gorm:"column:kind;not null" json:"kind"`
	Units     int            `gorm:"column:units;not null;default:0" json:"units"`
	Amount    int64          `gorm:"column:amount;not null" json:"amount"`
	Refunded  int64          `gorm:"column:refunded;not null;default:0" json:"refunded"`
	Status    string         `gorm:"column:status;not null;index" json:"status"`
	Info      string         `gorm:"column:info;type:text" json:"info,omitempty"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Transaction) TableName() string { return "ledger_transaction" }

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TxStatusPending
	}
	return nil
}
