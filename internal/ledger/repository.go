package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betting_ledger/internal/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInsufficientFunds   = apperr.Conflict("insufficient funds")
	ErrAlreadySettled      = apperr.Conflict("transaction already settled")
	ErrOwnedTransaction    = apperr.Conflict("transaction is settled by the process that references it")
	ErrTransactionNotFound = apperr.NotFound("transaction")
	ErrInvalidAmount       = apperr.Invalid("amount", "must be greater than zero")
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, t *WalletTransaction) error
	GetByID(ctx context.Context, db *gorm.DB, id string) (*WalletTransaction, error)
	MarkSettled(ctx context.Context, tx *gorm.DB, id string, status Status, at time.Time) error
	SumBalance(ctx context.Context, db *gorm.DB, userID string) (decimal.Decimal, error)
	SumPendingDebits(ctx context.Context, db *gorm.DB, userID string) (decimal.Decimal, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]WalletTransaction, error)
}

type TransactionRepositoryImpl struct{}

func NewTransactionRepository() *TransactionRepositoryImpl {
	return &TransactionRepositoryImpl{}
}

func (r *TransactionRepositoryImpl) Create(ctx context.Context, tx *gorm.DB, t *WalletTransaction) error {
	err := tx.WithContext(ctx).Omit("User").Create(t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return fmt.Errorf("user %s: %w", t.UserID, apperr.ErrNotFound)
		}
		return fmt.Errorf("failed to create wallet transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepositoryImpl) GetByID(ctx context.Context, db *gorm.DB, id string) (*WalletTransaction, error) {
	if !apperr.IsID(id) {
		return nil, ErrTransactionNotFound
	}
	var t WalletTransaction
	err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get wallet transaction: %w", err)
	}
	return &t, nil
}

// MarkSettled moves a pending transaction to its final status. The status
// guard in the WHERE clause makes the transition happen at most once.
func (r *TransactionRepositoryImpl) MarkSettled(ctx context.Context, tx *gorm.DB, id string, status Status, at time.Time) error {
	if !apperr.IsID(id) {
		return ErrTransactionNotFound
	}
	result := tx.WithContext(ctx).
		Model(&WalletTransaction{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{
			"status":     status,
			"settled_at": at,
			"updated_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to settle wallet transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, id); err != nil {
			return err
		}
		return ErrAlreadySettled
	}
	return nil
}

type sumResult struct {
	Total decimal.Decimal
}

func (r *TransactionRepositoryImpl) SumBalance(ctx context.Context, db *gorm.DB, userID string) (decimal.Decimal, error) {
	var res sumResult
	err := db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE -amount END), 0) AS total
		FROM wallet_transactions
		WHERE user_id = ? AND status = ?
	`, DirectionCredit, userID, StatusSuccess).Scan(&res).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum balance for user %s: %w", userID, err)
	}
	return res.Total, nil
}

func (r *TransactionRepositoryImpl) SumPendingDebits(ctx context.Context, db *gorm.DB, userID string) (decimal.Decimal, error) {
	var res sumResult
	err := db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(amount), 0) AS total
		FROM wallet_transactions
		WHERE user_id = ? AND status = ? AND direction = ?
	`, userID, StatusPending, DirectionDebit).Scan(&res).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum pending debits for user %s: %w", userID, err)
	}
	return res.Total, nil
}

func (r *TransactionRepositoryImpl) ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]WalletTransaction, error) {
	var txs []WalletTransaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return txs, nil
}
