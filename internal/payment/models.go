package payment

import (
	"time"

	"betting_ledger/internal/ledger"
	"betting_ledger/internal/users"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
)

// Payment tracks a deposit or withdrawal handed to the external gateway.
// Its status mirrors the linked wallet transaction.
type Payment struct {
	ID               string          `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	UserID           string          `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	PhoneNumber      string          `gorm:"column:phone_number;type:varchar(20);not null;index:idx_payments_phone_status,priority:1" json:"phone_number"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	PaymentType      Type            `gorm:"column:payment_type;type:varchar(20);not null" json:"payment_type"`
	Status           ledger.Status   `gorm:"column:status;type:varchar(20);not null;index:idx_payments_phone_status,priority:2" json:"status"`
	Message          string          `gorm:"column:message;type:text" json:"message,omitempty"`
	GatewayReference *string         `gorm:"column:gateway_reference;type:varchar(100);uniqueIndex" json:"gateway_reference,omitempty"`
	WalletTxID       *string         `gorm:"column:wallet_tx_id;type:uuid" json:"wallet_tx_id,omitempty"`
	CreatedAt        time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`

	User     *users.User               `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT" json:"-"`
	WalletTx *ledger.WalletTransaction `gorm:"foreignKey:WalletTxID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// Callback is the gateway's asynchronous notification about a payment
type Callback struct {
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	Reference   string          `json:"reference"`
}

type InitiateRequest struct {
	UserID      string          `json:"user_id"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
}

type ReconcileRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
