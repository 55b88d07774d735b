package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"betting_ledger/internal/apperr"
	"betting_ledger/internal/database"
	"betting_ledger/internal/events"
	"betting_ledger/internal/ledger"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type Service struct {
	runner    *database.Runner
	repo      PaymentRepository
	wallet    *ledger.Service
	publisher events.Publisher
}

func NewService(runner *database.Runner, repo PaymentRepository, wallet *ledger.Service, publisher events.Publisher) *Service {
	return &Service{
		runner:    runner,
		repo:      repo,
		wallet:    wallet,
		publisher: publisher,
	}
}

// NormalizeStatus maps the gateway's status vocabulary onto a final ledger status
func NormalizeStatus(gatewayStatus string) (ledger.Status, error) {
	switch strings.ToUpper(strings.TrimSpace(gatewayStatus)) {
	case "SUCCESSFUL", "SUCCESS":
		return ledger.StatusSuccess, nil
	case "FAILED", "REJECTED", "TIMEOUT":
		return ledger.StatusFailed, nil
	}
	return "", apperr.Invalid("status", fmt.Sprintf("unknown gateway status %q", gatewayStatus))
}

// InitiateDeposit records a pending deposit credit that the gateway callback settles
func (s *Service) InitiateDeposit(ctx context.Context, req InitiateRequest) (*Payment, error) {
	return s.initiate(ctx, req, TypeDeposit)
}

// InitiateWithdrawal reserves the funds with a pending debit until the gateway answers
func (s *Service) InitiateWithdrawal(ctx context.Context, req InitiateRequest) (*Payment, error) {
	return s.initiate(ctx, req, TypeWithdrawal)
}

func (s *Service) initiate(ctx context.Context, req InitiateRequest, paymentType Type) (*Payment, error) {
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		return nil, apperr.Invalid("phone_number", "is required")
	}
	if !req.Amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	entry := ledger.Entry{
		UserID:        req.UserID,
		Amount:        req.Amount,
		Direction:     ledger.DirectionCredit,
		TxType:        ledger.TxTypeDeposit,
		Description:   fmt.Sprintf("Deposit from %s", phone),
		ReferenceType: ledger.ReferencePayment,
	}
	if paymentType == TypeWithdrawal {
		entry.Direction = ledger.DirectionDebit
		entry.TxType = ledger.TxTypeWithdrawal
		entry.Description = fmt.Sprintf("Withdrawal to %s", phone)
	}

	var p *Payment
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		now := time.Now()
		p = &Payment{
			ID:          uuid.New().String(),
			UserID:      req.UserID,
			PhoneNumber: phone,
			Amount:      req.Amount,
			PaymentType: paymentType,
			Status:      ledger.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		e := entry
		e.ReferenceID = p.ID

		wtx, err := s.wallet.RecordTx(ctx, tx, e)
		if err != nil {
			return err
		}
		p.WalletTxID = &wtx.ID
		return s.repo.Create(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"payment_id":   p.ID,
		"user_id":      p.UserID,
		"payment_type": p.PaymentType,
		"amount":       p.Amount.StringFixed(2),
	}).Info("Payment initiated")

	return p, nil
}

// Reconcile applies the gateway's verdict to a payment and its wallet
// transaction. Repeating a verdict is a no-op; contradicting one is refused.
func (s *Service) Reconcile(ctx context.Context, paymentID, gatewayStatus, message string) (*Payment, error) {
	status, err := NormalizeStatus(gatewayStatus)
	if err != nil {
		return nil, err
	}

	var p *Payment
	var evts []events.Event
	err = s.runner.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		p, err = s.repo.LockByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		evts, err = s.reconcileLocked(ctx, tx, p, status, message, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, s.publisher, evts...)
	return p, nil
}

// ReconcileByGateway resolves the payment a gateway callback refers to and
// reconciles it. The first delivery of a reference claims the oldest pending
// payment with the same phone number and amount and stores the reference on
// it; redeliveries resolve through the stored reference.
func (s *Service) ReconcileByGateway(ctx context.Context, cb Callback) (*Payment, error) {
	status, err := NormalizeStatus(cb.Status)
	if err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(cb.Reference)
	if reference == "" {
		return nil, apperr.Invalid("reference", "is required")
	}
	phone := strings.TrimSpace(cb.PhoneNumber)
	if phone == "" {
		return nil, apperr.Invalid("phone_number", "is required")
	}
	if !cb.Amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	var p *Payment
	var evts []events.Event
	err = s.runner.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		p, err = s.repo.LockByReference(ctx, tx, reference)
		if errors.Is(err, ErrPaymentNotFound) {
			p, err = s.repo.LockOldestPending(ctx, tx, phone, cb.Amount)
		}
		if err != nil {
			return err
		}
		evts, err = s.reconcileLocked(ctx, tx, p, status, cb.Message, reference)
		return err
	})
	if err != nil {
		log.WithFields(log.Fields{
			"phone_number": cb.PhoneNumber,
			"reference":    cb.Reference,
			"status":       cb.Status,
			"error":        err,
		}).Warn("Gateway callback not applied")
		return nil, err
	}

	events.Emit(ctx, s.publisher, evts...)
	return p, nil
}

func (s *Service) reconcileLocked(ctx context.Context, tx *gorm.DB, p *Payment, status ledger.Status, message, reference string) ([]events.Event, error) {
	if p.Status != ledger.StatusPending {
		if p.Status == status {
			log.WithFields(log.Fields{
				"payment_id": p.ID,
				"status":     status,
			}).Debug("Payment already reconciled, ignoring repeat")
			return nil, nil
		}
		return nil, ErrAlreadySettled
	}
	if p.WalletTxID == nil {
		return nil, ErrLinkMismatch
	}

	wtx, err := s.wallet.SettleTx(ctx, tx, *p.WalletTxID, status)
	if err != nil {
		if !errors.Is(err, ledger.ErrAlreadySettled) {
			return nil, err
		}
		// the wallet side is final already; accept it only if it agrees
		wtx, err = s.wallet.GetTx(ctx, tx, *p.WalletTxID)
		if err != nil {
			return nil, err
		}
		if wtx.Status != status {
			return nil, ErrLinkMismatch
		}
	}
	if wtx.UserID != p.UserID {
		return nil, ErrLinkMismatch
	}

	p.Status = status
	p.Message = message
	if reference != "" {
		ref := reference
		p.GatewayReference = &ref
	}
	if err := s.repo.Update(ctx, tx, p); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"payment_id":     p.ID,
		"transaction_id": wtx.ID,
		"status":         status,
	}).Info("Payment reconciled")

	return []events.Event{
		events.New(events.EventTypePaymentReconciled, []string{p.UserID}, map[string]any{
			"payment_id":   p.ID,
			"payment_type": p.PaymentType,
			"amount":       p.Amount.StringFixed(2),
			"status":       p.Status,
		}),
		ledger.SettledEvent(wtx),
	}, nil
}

func (s *Service) Get(ctx context.Context, paymentID string) (*Payment, error) {
	var p *Payment
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		p, err = s.repo.GetByID(ctx, db, paymentID)
		return err
	})
	return p, err
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var payments []Payment
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		payments, err = s.repo.ListByUser(ctx, db, userID, limit)
		return err
	})
	return payments, err
}
