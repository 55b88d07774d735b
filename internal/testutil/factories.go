package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"betting_ledger/internal/ledger"
	"betting_ledger/internal/users"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// CreateTestUser inserts a user with a unique name derived from prefix
func CreateTestUser(t *testing.T, db *gorm.DB, prefix string) *users.User {
	t.Helper()
	suffix := uuid.New().String()[:8]
	now := time.Now()
	email := fmt.Sprintf("%s_%s@example.com", prefix, suffix)
	u := &users.User{
		Username:    fmt.Sprintf("%s_%s", prefix, suffix),
		Email:       &email,
		PhoneNumber: "0911000000",
		Password:    "not-a-real-hash",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Fund credits the user with a settled deposit
func Fund(t *testing.T, svc *ledger.Service, userID, amount string) {
	t.Helper()
	ctx := context.Background()
	id, err := svc.Record(ctx, userID, decimal.RequireFromString(amount), ledger.DirectionCredit, ledger.TxTypeDeposit, "test deposit")
	require.NoError(t, err)
	require.NoError(t, svc.Settle(ctx, id, ledger.StatusSuccess))
}

// RequireBalance asserts the user's settled balance
func RequireBalance(t *testing.T, svc *ledger.Service, userID, want string) {
	t.Helper()
	got, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString(want).Equal(got), "balance of %s: want %s, got %s", userID, want, got)
}
