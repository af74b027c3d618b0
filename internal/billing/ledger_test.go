package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	billingrepo "github.com/yungbote/clusterforge-backend/internal/data/repos/billing"
	"github.com/yungbote/clusterforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/clusterforge-backend/internal/domain/billing"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
)

func newLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return NewLedger(db, billingrepo.NewAccountRepo(db, log), billingrepo.NewTransactionRepo(db, log), DefaultPageCents, nil, log), db
}

func TestChargeAndPartialRefund(t *testing.T) {
	ledger, db := newLedger(t)
	dbc := dbctx.New(context.Background())
	owner := uuid.New()
	testutil.SeedAccount(t, db, owner, 10_000)

	tx, err := ledger.Charge(dbc, ChargeRequest{OwnerID: owner, ObjectID: uuid.New(), JobRunID: uuid.New(), Units: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2890, tx.Amount)
	assert.Equal(t, billing.TxStatusPending, tx.Status)

	bal, err := ledger.Balance(dbc, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000-2890, bal)

	res, err := ledger.Refund(dbc, tx.ID, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 289, res.Refunded)
	assert.Equal(t, billing.TxStatusCompleted, res.Transaction.Status)

	bal, err = ledger.Balance(dbc, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000-2890+289, bal)

	_, err = ledger.Refund(dbc, tx.ID, 1)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestFullRefundCancels(t *testing.T) {
	ledger, db := newLedger(t)
	dbc := dbctx.New(context.Background())
	owner := uuid.New()
	testutil.SeedAccount(t, db, owner, 2890)

	tx, err := ledger.Charge(dbc, ChargeRequest{OwnerID: owner, ObjectID: uuid.New(), JobRunID: uuid.New(), Units: 10})
	require.NoError(t, err)

	// more failures than charged units still refunds no more than the charge
	res, err := ledger.Refund(dbc, tx.ID, 12)
	require.NoError(t, err)
	assert.EqualValues(t, 2890, res.Refunded)
	assert.Equal(t, billing.TxStatusCancelled, res.Transaction.Status)

	bal, err := ledger.Balance(dbc, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 2890, bal)
}

func TestZeroFailuresRefundsNothing(t *testing.T) {
	ledger, db := newLedger(t)
	dbc := dbctx.New(context.Background())
	owner := uuid.New()
	testutil.SeedAccount(t, db, owner, 5000)

	tx, err := ledger.Charge(dbc, ChargeRequest{OwnerID: owner, ObjectID: uuid.New(), JobRunID: uuid.New(), Units: 3})
	require.NoError(t, err)
	res, err := ledger.Refund(dbc, tx.ID, 0)
	require.NoError(t, err)
	assert.Zero(t, res.Refunded)
	assert.Equal(t, billing.TxStatusCompleted, res.Transaction.Status)
}

func TestInsufficientBalanceWritesNothing(t *testing.T) {
	ledger, db := newLedger(t)
	dbc := dbctx.New(context.Background())
	owner := uuid.New()
	clusterID := uuid.New()
	testutil.SeedAccount(t, db, owner, 100)

	_, err := ledger.Charge(dbc, ChargeRequest{OwnerID: owner, ObjectID: clusterID, JobRunID: uuid.New(), Units: 1})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	var n int64
	require.NoError(t, db.Model(&billing.Transaction{}).Where("object_id = ?", clusterID).Count(&n).Error)
	assert.Zero(t, n)
	bal, err := ledger.Balance(dbc, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 100, bal)
}

func TestChargeOncePerJobRun(t *testing.T) {
	ledger, db := newLedger(t)
	dbc := dbctx.New(context.Background())
	owner := uuid.New()
	testutil.SeedAccount(t, db, owner, 10_000)

	run := uuid.New()
	_, err := ledger.Charge(dbc, ChargeRequest{OwnerID: owner, ObjectID: uuid.New(), JobRunID: run, Units: 2})
	require.NoError(t, err)
	_, err = ledger.Charge(dbc, ChargeRequest{OwnerID: owner, ObjectID: uuid.New(), JobRunID: run, Units: 2})
	assert.ErrorIs(t, err, ErrAlreadyCharged)

	bal, err := ledger.Balance(dbc, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 10_000-578, bal)
}

func TestConcurrentChargesNeverOverdraw(t *testing.T) {
	ledger, db := newLedger(t)
	owner := uuid.New()
	testutil.SeedAccount(t, db, owner, 289*5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Charge(dbctx.New(context.Background()), ChargeRequest{
				OwnerID: owner, ObjectID: uuid.New(), JobRunID: uuid.New(), Units: 1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 3, rejected)

	bal, err := ledger.Balance(dbctx.New(context.Background()), owner)
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestRefundAmount(t *testing.T) {
	cases := []struct {
		failed  int
		unit    int64
		charged int64
		want    int64
	}{
		{0, 289, 2890, 0},
		{1, 289, 2890, 289},
		{10, 289, 2890, 2890},
		{11, 289, 2890, 2890},
		{-1, 289, 2890, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RefundAmount(tc.failed, tc.unit, tc.charged))
	}
}

func TestDepositTopsUpAndRejectsNonPositive(t *testing.T) {
	ledger, _ := newLedger(t)
	dbc := dbctx.New(context.Background())
	owner := uuid.New()

	bal, err := ledger.Deposit(dbc, owner, 500)
	require.NoError(t, err)
	assert.EqualValues(t, 500, bal)

	bal, err = ledger.Deposit(dbc, owner, 289)
	require.NoError(t, err)
	assert.EqualValues(t, 789, bal)

	_, err = ledger.Deposit(dbc, owner, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ledger.Deposit(dbc, owner, -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	bal, err = ledger.Balance(dbc, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 789, bal)
}
