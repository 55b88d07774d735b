package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"betting_ledger/internal/apperr"
	"betting_ledger/internal/events"
	"betting_ledger/internal/ledger"
	"betting_ledger/internal/testutil"
	"betting_ledger/internal/users"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func setup(t *testing.T) (*testutil.TestDatabase, *ledger.Service, *recorder) {
	t.Helper()
	testDB := testutil.SetupTestDatabase(t)
	rec := &recorder{}
	svc := ledger.NewService(testDB.Runner(), ledger.NewTransactionRepository(), users.NewUserRepository(testDB.DB), rec)
	return testDB, svc, rec
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedgerRecordAndSettle(t *testing.T) {
	testDB, svc, rec := setup(t)
	ctx := context.Background()
	user := testutil.CreateTestUser(t, testDB.DB, "alice")

	id, err := svc.Record(ctx, user.ID, amt("100"), ledger.DirectionCredit, ledger.TxTypeDeposit, "deposit")
	require.NoError(t, err)

	// pending credits do not count
	testutil.RequireBalance(t, svc, user.ID, "0")

	require.NoError(t, svc.Settle(ctx, id, ledger.StatusSuccess))
	testutil.RequireBalance(t, svc, user.ID, "100")

	tx, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSuccess, tx.Status)
	assert.NotNil(t, tx.SettledAt)
	require.Len(t, rec.events, 1)
	assert.Equal(t, events.EventTypeTransactionSettled, rec.events[0].Type)
}

func TestLedgerSettleExactlyOnce(t *testing.T) {
	testDB, svc, _ := setup(t)
	ctx := context.Background()
	user := testutil.CreateTestUser(t, testDB.DB, "bob")

	id, err := svc.Record(ctx, user.ID, amt("40"), ledger.DirectionCredit, ledger.TxTypeDeposit, "deposit")
	require.NoError(t, err)
	require.NoError(t, svc.Settle(ctx, id, ledger.StatusFailed))

	err = svc.Settle(ctx, id, ledger.StatusSuccess)
	assert.ErrorIs(t, err, ledger.ErrAlreadySettled)
	err = svc.Settle(ctx, id, ledger.StatusFailed)
	assert.ErrorIs(t, err, ledger.ErrAlreadySettled)

	testutil.RequireBalance(t, svc, user.ID, "0")

	err = svc.Settle(ctx, uuid.New().String(), ledger.StatusSuccess)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	err = svc.Settle(ctx, id, ledger.StatusPending)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestLedgerConcurrentSettleSingleWinner(t *testing.T) {
	testDB, svc, _ := setup(t)
	ctx := context.Background()
	user := testutil.CreateTestUser(t, testDB.DB, "carol")

	id, err := svc.Record(ctx, user.ID, amt("25"), ledger.DirectionCredit, ledger.TxTypeDeposit, "deposit")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Settle(ctx, id, ledger.StatusSuccess)
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ledger.ErrAlreadySettled)
	}
	assert.Equal(t, 1, succeeded)
	testutil.RequireBalance(t, svc, user.ID, "25")
}

func TestLedgerRejectsInvalidInput(t *testing.T) {
	testDB, svc, _ := setup(t)
	ctx := context.Background()
	user := testutil.CreateTestUser(t, testDB.DB, "dave")

	tests := []struct {
		name      string
		amount    string
		direction ledger.Direction
		txType    ledger.TxType
	}{
		{"zero amount", "0", ledger.DirectionCredit, ledger.TxTypeDeposit},
		{"negative amount", "-5", ledger.DirectionCredit, ledger.TxTypeDeposit},
		{"sub-cent amount", "1.005", ledger.DirectionCredit, ledger.TxTypeDeposit},
		{"bad direction", "5", ledger.Direction("sideways"), ledger.TxTypeDeposit},
		{"bad type", "5", ledger.DirectionCredit, ledger.TxType("bonus")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(ctx, user.ID, amt(tt.amount), tt.direction, tt.txType, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ledger.ErrValidation))

			var verr *ledger.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}

	history, err := svc.History(ctx, user.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLedgerUnknownUser(t *testing.T) {
	_, svc, _ := setup(t)
	ctx := context.Background()
	ghost := uuid.New().String()

	_, err := svc.Record(ctx, ghost, amt("5"), ledger.DirectionCredit, ledger.TxTypeDeposit, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Record(ctx, ghost, amt("5"), ledger.DirectionDebit, ledger.TxTypeWithdrawal, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Balance(ctx, ghost)
	assert.ErrorIs(t, err, users.ErrUserNotFound)
}

func TestLedgerDebitAuthorization(t *testing.T) {
	testDB, svc, _ := setup(t)
	ctx := context.Background()
	user := testutil.CreateTestUser(t, testDB.DB, "erin")
	testutil.Fund(t, svc, user.ID, "100")

	_, err := svc.Record(ctx, user.ID, amt("100.01"), ledger.DirectionDebit, ledger.TxTypeWithdrawal, "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	pending, err := svc.Record(ctx, user.ID, amt("60"), ledger.DirectionDebit, ledger.TxTypeWithdrawal, "")
	require.NoError(t, err)

	// the pending debit reserves funds but leaves the balance alone
	testutil.RequireBalance(t, svc, user.ID, "100")
	available, err := svc.Available(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, amt("40").Equal(available))

	_, err = svc.Record(ctx, user.ID, amt("50"), ledger.DirectionDebit, ledger.TxTypeWithdrawal, "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	require.NoError(t, svc.Settle(ctx, pending, ledger.StatusFailed))
	available, err = svc.Available(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, amt("100").Equal(available))
}

func TestLedgerConcurrentDebitsNeverOverdraw(t *testing.T) {
	testDB, svc, _ := setup(t)
	ctx := context.Background()
	user := testutil.CreateTestUser(t, testDB.DB, "frank")
	testutil.Fund(t, svc, user.ID, "100")

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := testDB.Runner().InTx(ctx, func(tx *gorm.DB) error {
				_, err := svc.PostTx(ctx, tx, ledger.Entry{
					UserID:    user.ID,
					Amount:    amt("30"),
					Direction: ledger.DirectionDebit,
					TxType:    ledger.TxTypeGameLoss,
				})
				return err
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	}
	assert.Equal(t, 3, ok)
	testutil.RequireBalance(t, svc, user.ID, "10")
}

func TestLedgerHistoryNewestFirst(t *testing.T) {
	testDB, svc, _ := setup(t)
	ctx := context.Background()
	user := testutil.CreateTestUser(t, testDB.DB, "gina")

	for _, a := range []string{"1", "2", "3"} {
		_, err := svc.Record(ctx, user.ID, amt(a), ledger.DirectionCredit, ledger.TxTypeDeposit, "deposit "+a)
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, amt("3").Equal(history[0].Amount))
	assert.True(t, amt("2").Equal(history[1].Amount))
}

func TestLedgerMalformedIDsAreNotFound(t *testing.T) {
	_, svc, _ := setup(t)
	ctx := context.Background()

	err := svc.Settle(ctx, "abc", ledger.StatusSuccess)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)

	_, err = svc.Get(ctx, "abc")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = svc.Record(ctx, "bob", amt("5"), ledger.DirectionCredit, ledger.TxTypeDeposit, "")
	assert.ErrorIs(t, err, users.ErrUserNotFound)

	_, err = svc.Balance(ctx, "bob")
	assert.ErrorIs(t, err, users.ErrUserNotFound)

	_, err = svc.History(ctx, "bob", 0)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
