package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/clusterforge-backend/internal/domain/billing"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

type AccountRepo interface {
	Get(dbc dbctx.Context, ownerID uuid.UUID) (*billing.Account, error)
	Credit(dbc dbctx.Context, ownerID uuid.UUID, amount int64) error
	// Debit subtracts amount only when the balance covers it. The check and
	// the write are one statement so concurrent debits cannot overdraw.
	Debit(dbc dbctx.Context, ownerID uuid.UUID, amount int64) (bool, error)
}

type accountRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAccountRepo(db *gorm.DB, baseLog *logger.Logger) AccountRepo {
	return &accountRepo{db: db, log: baseLog.With("repo", "AccountRepo")}
}

func (r *accountRepo) Get(dbc dbctx.Context, ownerID uuid.UUID) (*billing.Account, error) {
	var acc billing.Account
	if err := dbc.Conn(r.db).Where("owner_id = ?", ownerID).Limit(1).Find(&acc).Error; err != nil {
		return nil, err
	}
	if acc.OwnerID == uuid.Nil {
		return &billing.Account{OwnerID: ownerID}, nil
	}
	return &acc, nil
}

func (r *accountRepo) Credit(dbc dbctx.Context, ownerID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return nil
	}
	acc := billing.Account{OwnerID: ownerID, Balance: amount}
	return dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("account.balance + ?", amount),
			"updated_at": time.Now(),
		}),
	}).Create(&acc).Error
}

func (r *accountRepo) Debit(dbc dbctx.Context, ownerID uuid.UUID, amount int64) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	res := dbc.Conn(r.db).
		Model(&billing.Account{}).
		Where("owner_id = ? AND balance >= ?", ownerID, amount).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
