package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betting_ledger/internal/apperr"
	"betting_ledger/internal/ledger"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPaymentNotFound = apperr.NotFound("payment")
	ErrLinkMismatch    = apperr.Conflict("payment is not linked to a matching wallet transaction")
	ErrAlreadySettled  = ledger.ErrAlreadySettled
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, p *Payment) error
	GetByID(ctx context.Context, db *gorm.DB, id string) (*Payment, error)
	LockByID(ctx context.Context, tx *gorm.DB, id string) (*Payment, error)
	LockByReference(ctx context.Context, tx *gorm.DB, reference string) (*Payment, error)
	LockOldestPending(ctx context.Context, tx *gorm.DB, phone string, amount decimal.Decimal) (*Payment, error)
	Update(ctx context.Context, tx *gorm.DB, p *Payment) error
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]Payment, error)
}

type PaymentRepositoryImpl struct{}

func NewPaymentRepository() *PaymentRepositoryImpl {
	return &PaymentRepositoryImpl{}
}

func (r *PaymentRepositoryImpl) Create(ctx context.Context, tx *gorm.DB, p *Payment) error {
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepositoryImpl) GetByID(ctx context.Context, db *gorm.DB, id string) (*Payment, error) {
	if !apperr.IsID(id) {
		return nil, ErrPaymentNotFound
	}
	return r.first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *PaymentRepositoryImpl) LockByID(ctx context.Context, tx *gorm.DB, id string) (*Payment, error) {
	if !apperr.IsID(id) {
		return nil, ErrPaymentNotFound
	}
	return r.first(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *PaymentRepositoryImpl) LockByReference(ctx context.Context, tx *gorm.DB, reference string) (*Payment, error) {
	return r.first(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("gateway_reference = ?", reference))
}

// LockOldestPending skips rows another callback already holds, so two
// callbacks for the same phone and amount resolve to different payments
func (r *PaymentRepositoryImpl) LockOldestPending(ctx context.Context, tx *gorm.DB, phone string, amount decimal.Decimal) (*Payment, error) {
	return r.first(tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("phone_number = ? AND amount = ? AND status = ?", phone, amount, ledger.StatusPending).
		Order("created_at, id"))
}

func (r *PaymentRepositoryImpl) first(q *gorm.DB) (*Payment, error) {
	var p Payment
	if err := q.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepositoryImpl) Update(ctx context.Context, tx *gorm.DB, p *Payment) error {
	p.UpdatedAt = time.Now()
	err := tx.WithContext(ctx).Model(&Payment{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"status":            p.Status,
		"message":           p.Message,
		"gateway_reference": p.GatewayReference,
		"updated_at":        p.UpdatedAt,
	}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("gateway reference already used by another payment")
		}
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

func (r *PaymentRepositoryImpl) ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]Payment, error) {
	var payments []Payment
	if !apperr.IsID(userID) {
		return payments, nil
	}
	err := db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id").Limit(limit).Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}
