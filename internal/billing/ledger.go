package billing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	billingrepo "github.com/yungbote/clusterforge-backend/internal/data/repos/billing"
	"github.com/yungbote/clusterforge-backend/internal/domain/billing"
	"github.com/yungbote/clusterforge-backend/internal/observability"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/clusterforge-backend/internal/platform/logger"
)

const DefaultPageCents int64 = 289

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyCharged      = errors.New("job already charged")
	ErrAlreadySettled      = errors.New("transaction already settled")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

type ChargeRequest struct {
	OwnerID  uuid.UUID
	ObjectID uuid.UUID
	JobRunID uuid.UUID
	Units    int
	Info     string
}

type RefundResult struct {
	Transaction *billing.Transaction
	Refunded    int64
}

// Ledger charges owners up front and refunds permanently failed units.
// Every balance change runs in the same database transaction as the ledger row
// it belongs to; callers pass their own transaction through dbctx to join it.
type Ledger struct {
	db        *gorm.DB
	accounts  billingrepo.AccountRepo
	txs       billingrepo.TransactionRepo
	unitCents int64
	metrics   observability.Recorder
	log       *logger.Logger
}

func NewLedger(db *gorm.DB, accounts billingrepo.AccountRepo, txs billingrepo.TransactionRepo, unitCents int64, metrics observability.Recorder, log *logger.Logger) *Ledger {
	if unitCents <= 0 {
		unitCents = DefaultPageCents
	}
	if metrics == nil {
		metrics = observability.NoopRecorder{}
	}
	return &Ledger{
		db:        db,
		accounts:  accounts,
		txs:       txs,
		unitCents: unitCents,
		metrics:   metrics,
		log:       log.With("service", "Ledger"),
	}
}

func (l *Ledger) UnitCents() int64 { return l.unitCents }

func (l *Ledger) Price(units int) int64 {
	if units <= 0 {
		return 0
	}
	return int64(units) * l.unitCents
}

func (l *Ledger) Balance(dbc dbctx.Context, ownerID uuid.UUID) (int64, error) {
	acc, err := l.accounts.Get(dbc, ownerID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Deposit tops up the owner's account and returns the new balance.
func (l *Ledger) Deposit(dbc dbctx.Context, ownerID uuid.UUID, cents int64) (int64, error) {
	if ownerID == uuid.Nil {
		return 0, fmt.Errorf("deposit: owner is required")
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	if err := l.accounts.Credit(dbc, ownerID, cents); err != nil {
		return 0, fmt.Errorf("deposit: %w", err)
	}
	l.log.Info("account topped up", "owner_id", ownerID, "cents", cents)
	return l.Balance(dbc, ownerID)
}

// Charge debits Price(req.Units) and records a pending transaction for the
// job run. A job run is charged at most once.
func (l *Ledger) Charge(dbc dbctx.Context, req ChargeRequest) (*billing.Transaction, error) {
	if req.OwnerID == uuid.Nil || req.JobRunID == uuid.Nil {
		return nil, fmt.Errorf("charge: owner and job run are required")
	}
	amount := l.Price(req.Units)
	var out *billing.Transaction
	err := dbc.Conn(l.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.WithTx(dbc.Context(), tx)
		existing, err := l.txs.GetByJobRunID(inner, req.JobRunID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyCharged
		}
		ok, err := l.accounts.Debit(inner, req.OwnerID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}
		runID := req.JobRunID
		row, err := l.txs.Create(inner, &billing.Transaction{
			OwnerID:  req.OwnerID,
			ObjectID: req.ObjectID,
			JobRunID: &runID,
			Kind:     billing.TxKindClusterPages,
			Units:    req.Units,
			Amount:   amount,
			Status:   billing.TxStatusPending,
			Info:     req.Info,
		})
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyCharged
			}
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("charged", "owner_id", req.OwnerID, "object_id", req.ObjectID, "units", req.Units, "amount", amount)
	return out, nil
}

// Refund settles a pending charge, returning min(failedUnits*unit, amount)
// to the owner. A full refund cancels the transaction; anything else
// completes it. A transaction settles exactly once.
func (l *Ledger) Refund(dbc dbctx.Context, transactionID uuid.UUID, failedUnits int) (*RefundResult, error) {
	var out RefundResult
	err := dbc.Conn(l.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.WithTx(dbc.Context(), tx)
		row, err := l.txs.GetByID(inner, transactionID)
		if err != nil {
			return err
		}
		if row == nil {
			return ErrTransactionNotFound
		}
		if row.Status != billing.TxStatusPending {
			return ErrAlreadySettled
		}
		refund := RefundAmount(failedUnits, l.unitOf(row), row.Amount)
		status := billing.TxStatusCompleted
		if refund > 0 && refund == row.Amount {
			status = billing.TxStatusCancelled
		}
		info := ""
		if refund > 0 {
			info = fmt.Sprintf("refunded %d of %d units", failedUnits, row.Units)
		}
		ok, err := l.txs.Settle(inner, row.ID, refund, status, info)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadySettled
		}
		if err := l.accounts.Credit(inner, row.OwnerID, refund); err != nil {
			return err
		}
		row.Refunded = refund
		row.Status = status
		out = RefundResult{Transaction: row, Refunded: refund}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.metrics.ObserveRefund(out.Refunded)
	if out.Refunded > 0 {
		l.log.Info("refunded", "transaction_id", transactionID, "failed_units", failedUnits, "amount", out.Refunded)
	}
	return &out, nil
}

// RefundAmount is min(failedUnits*unit, charged), never negative.
func RefundAmount(failedUnits int, unit, charged int64) int64 {
	if failedUnits <= 0 || unit <= 0 || charged <= 0 {
		return 0
	}
	refund := int64(failedUnits) * unit
	if refund > charged {
		return charged
	}
	return refund
}

// unitOf prices refunds at the rate the transaction was charged with.
func (l *Ledger) unitOf(t *billing.Transaction) int64 {
	if t.Units > 0 && t.Amount > 0 {
		return t.Amount / int64(t.Units)
	}
	return l.unitCents
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
