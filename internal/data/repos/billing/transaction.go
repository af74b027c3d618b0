package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/clusterforge-backend/internal/domain/billing"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type TransactionRepo interface {
	Create(dbc dbctx.Context, t *billing.Transaction) (*billing.Transaction, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*billing.Transaction, error)
	GetByJobRunID(dbc dbctx.Context, jobRunID uuid.UUID) (*billing.Transaction, error)
	ListByObject(dbc dbctx.Context, objectID uuid.UUID) ([]*billing.Transaction, error)
	// Settle moves a pending transaction to its final status. It reports
	// false when the row was already settled.
	Settle(dbc dbctx.Context, id uuid.UUID, refunded int64, status, info string) (bool, error)
}

type transactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTransactionRepo(db *gorm.DB, baseLog *logger.Logger) TransactionRepo {
	return &transactionRepo{db: db, log: baseLog.With("repo", "TransactionRepo")}
}

func (r *transactionRepo) Create(dbc dbctx.Context, t *billing.Transaction) (*billing.Transaction, error) {
	if err := dbc.Conn(r.db).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

func (r *transactionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*billing.Transaction, error) {
	var t billing.Transaction
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

func (r *transactionRepo) GetByJobRunID(dbc dbctx.Context, jobRunID uuid.UUID) (*billing.Transaction, error) {
	var t billing.Transaction
	if err := dbc.Conn(r.db).Where("job_run_id = ?", jobRunID).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

func (r *transactionRepo) ListByObject(dbc dbctx.Context, objectID uuid.UUID) ([]*billing.Transaction, error) {
	var out []*billing.Transaction
	err := dbc.Conn(r.db).Where("object_id = ?", objectID).Order("created_at ASC").Find(&out).Error
	return out, err
}

func (r *transactionRepo) Settle(dbc dbctx.Context, id uuid.UUID, refunded int64, status, info string) (bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"refunded":   refunded,
		"updated_at": time.Now(),
	}
	if info != "" {
		updates["info"] = info
	}
	res := dbc.Conn(r.db).
		Model(&billing.Transaction{}).
		Where("id = ? AND status = ?", id, billing.TxStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
