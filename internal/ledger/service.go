package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"betting_ledger/internal/apperr"
	"betting_ledger/internal/database"
	"betting_ledger/internal/events"
	"betting_ledger/internal/users"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Error kinds re-exported so callers of the ledger need only this package
var (
	ErrValidation = apperr.ErrValidation
	ErrNotFound   = apperr.ErrNotFound
)

type ValidationError = apperr.ValidationError

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

type Service struct {
	runner    *database.Runner
	repo      TransactionRepository
	users     users.UserRepository
	publisher events.Publisher
}

func NewService(runner *database.Runner, repo TransactionRepository, userRepo users.UserRepository, publisher events.Publisher) *Service {
	return &Service{
		runner:    runner,
		repo:      repo,
		users:     userRepo,
		publisher: publisher,
	}
}

// Record appends a pending transaction to the user's journal and returns its id
func (s *Service) Record(ctx context.Context, userID string, amount decimal.Decimal, direction Direction, txType TxType, description string) (string, error) {
	entry := Entry{
		UserID:      userID,
		Amount:      amount,
		Direction:   direction,
		TxType:      txType,
		Description: description,
	}
	if err := validateEntry(entry); err != nil {
		return "", err
	}

	var t *WalletTransaction
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		t, err = s.RecordTx(ctx, tx, entry)
		return err
	})
	if err != nil {
		return "", err
	}

	log.WithFields(log.Fields{
		"transaction_id": t.ID,
		"user_id":        t.UserID,
		"amount":         t.Amount.StringFixed(2),
		"direction":      t.Direction,
		"tx_type":        t.TxType,
	}).Info("Wallet transaction recorded")

	return t.ID, nil
}

// Settle moves a pending transaction to success or failed, exactly once.
// Transactions referencing a game, tournament or payment belong to that
// process and are refused with ErrOwnedTransaction.
func (s *Service) Settle(ctx context.Context, transactionID string, outcome Status) error {
	if !outcome.Outcome() {
		return apperr.Invalid("outcome", "must be success or failed")
	}

	var t *WalletTransaction
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		current, err := s.repo.GetByID(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if current.ReferenceType != "" {
			return ErrOwnedTransaction
		}
		t, err = s.SettleTx(ctx, tx, transactionID, outcome)
		return err
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"transaction_id": t.ID,
		"user_id":        t.UserID,
		"status":         t.Status,
	}).Info("Wallet transaction settled")

	events.Emit(ctx, s.publisher, SettledEvent(t))
	return nil
}

// Balance folds the user's successful transactions into a signed sum
func (s *Service) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		balance, err = s.repo.SumBalance(ctx, db, userID)
		return err
	})
	return balance, err
}

// Available is the balance minus debits that are still pending
func (s *Service) Available(ctx context.Context, userID string) (decimal.Decimal, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return decimal.Zero, err
	}

	var available decimal.Decimal
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		available, err = s.available(ctx, db, userID)
		return err
	})
	return available, err
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]WalletTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	var txs []WalletTransaction
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		txs, err = s.repo.ListByUser(ctx, db, userID, limit)
		return err
	})
	return txs, err
}

func (s *Service) Get(ctx context.Context, transactionID string) (*WalletTransaction, error) {
	var t *WalletTransaction
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		t, err = s.repo.GetByID(ctx, db, transactionID)
		return err
	})
	return t, err
}

// AuthorizeDebitTx takes the user's row lock and checks that the available
// balance covers amount. The lock is held until tx ends, so the caller must
// record the debit in the same tx.
func (s *Service) AuthorizeDebitTx(ctx context.Context, tx *gorm.DB, userID string, amount decimal.Decimal) error {
	if err := s.users.LockForUpdate(ctx, tx, userID); err != nil {
		return err
	}

	available, err := s.available(ctx, tx, userID)
	if err != nil {
		return err
	}
	if available.LessThan(amount) {
		log.WithFields(log.Fields{
			"user_id":   userID,
			"available": available.StringFixed(2),
			"requested": amount.StringFixed(2),
		}).Warn("Debit rejected, insufficient funds")
		return ErrInsufficientFunds
	}
	return nil
}

// RecordTx inserts a pending transaction inside tx. Debits are authorized first.
func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, e Entry) (*WalletTransaction, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}

	if e.Direction == DirectionDebit {
		if err := s.AuthorizeDebitTx(ctx, tx, e.UserID, e.Amount); err != nil {
			return nil, err
		}
	}

	t, err := newTransaction(e)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// SettleTx is Settle inside the caller's transaction; events are the caller's job
func (s *Service) SettleTx(ctx context.Context, tx *gorm.DB, transactionID string, outcome Status) (*WalletTransaction, error) {
	if !outcome.Outcome() {
		return nil, apperr.Invalid("outcome", "must be success or failed")
	}

	now := time.Now()
	if err := s.repo.MarkSettled(ctx, tx, transactionID, outcome, now); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, tx, transactionID)
}

// GetTx reads a transaction inside the caller's transaction
func (s *Service) GetTx(ctx context.Context, tx *gorm.DB, transactionID string) (*WalletTransaction, error) {
	return s.repo.GetByID(ctx, tx, transactionID)
}

// PostTx records a movement and settles it as success in one step. Used for
// stakes, fees, refunds and payouts, which never wait on an outside party.
func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, e Entry) (*WalletTransaction, error) {
	t, err := s.RecordTx(ctx, tx, e)
	if err != nil {
		return nil, err
	}
	return s.SettleTx(ctx, tx, t.ID, StatusSuccess)
}

func (s *Service) available(ctx context.Context, db *gorm.DB, userID string) (decimal.Decimal, error) {
	balance, err := s.repo.SumBalance(ctx, db, userID)
	if err != nil {
		return decimal.Zero, err
	}
	pending, err := s.repo.SumPendingDebits(ctx, db, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Sub(pending), nil
}

// SettledEvent describes a transaction's move to its final status
func SettledEvent(t *WalletTransaction) events.Event {
	return events.New(events.EventTypeTransactionSettled, []string{t.UserID}, map[string]any{
		"transaction_id": t.ID,
		"amount":         t.Amount.StringFixed(2),
		"direction":      t.Direction,
		"tx_type":        t.TxType,
		"status":         t.Status,
	})
}

func validateEntry(e Entry) error {
	if e.UserID == "" {
		return apperr.Invalid("user_id", "is required")
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !e.Amount.Equal(e.Amount.Truncate(2)) {
		return apperr.Invalid("amount", "must have at most 2 decimal places")
	}
	if !e.Direction.Valid() {
		return apperr.Invalid("direction", "must be credit or debit")
	}
	if !e.TxType.Valid() {
		return apperr.Invalid("tx_type", fmt.Sprintf("unknown type %q", e.TxType))
	}
	if !apperr.IsID(e.UserID) {
		return users.ErrUserNotFound
	}
	return nil
}

func newTransaction(e Entry) (*WalletTransaction, error) {
	now := time.Now()
	t := &WalletTransaction{
		UserID:        e.UserID,
		Amount:        e.Amount.Truncate(2),
		Direction:     e.Direction,
		TxType:        e.TxType,
		Status:        StatusPending,
		Description:   e.Description,
		ReferenceType: e.ReferenceType,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if e.ReferenceID != "" {
		ref := e.ReferenceID
		t.ReferenceID = &ref
	}
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode transaction metadata: %w", err)
		}
		t.Metadata = raw
	}
	return t, nil
}
