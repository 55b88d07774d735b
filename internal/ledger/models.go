package ledger

import (
	"time"

	"betting_ledger/internal/users"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

type TxType string

const (
	TxTypeDeposit    TxType = "deposit"
	TxTypeWithdrawal TxType = "withdrawal"
	TxTypeGameWin    TxType = "game_win"
	TxTypeGameLoss   TxType = "game_loss" // stake debits, and their refund credits
	TxTypeHouseCut   TxType = "house_cut"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ReferenceType names the entity a ledger movement belongs to
type ReferenceType string

const (
	ReferenceGame       ReferenceType = "game"
	ReferenceTournament ReferenceType = "tournament"
	ReferencePayment    ReferenceType = "payment"
)

type WalletTransaction struct {
	ID            string          `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	UserID        string          `gorm:"column:user_id;type:uuid;not null;index:idx_wallet_tx_user_status,priority:1" json:"user_id"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	Direction     Direction       `gorm:"column:direction;type:varchar(10);not null" json:"direction"`
	TxType        TxType          `gorm:"column:tx_type;type:varchar(20);not null" json:"tx_type"`
	Status        Status          `gorm:"column:status;type:varchar(20);not null;index:idx_wallet_tx_user_status,priority:2" json:"status"`
	Description   string          `gorm:"column:description;type:varchar(255)" json:"description"`
	ReferenceType ReferenceType   `gorm:"column:reference_type;type:varchar(20)" json:"reference_type,omitempty"`
	ReferenceID   *string         `gorm:"column:reference_id;type:uuid;index" json:"reference_id,omitempty"`
	Metadata      datatypes.JSON  `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	SettledAt     *time.Time      `gorm:"column:settled_at" json:"settled_at,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`

	User *users.User `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// Signed is the transaction's effect on the balance once it succeeds
func (t *WalletTransaction) Signed() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (t *WalletTransaction) IsFinal() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}

func (d Direction) Valid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

func (t TxType) Valid() bool {
	switch t {
	case TxTypeDeposit, TxTypeWithdrawal, TxTypeGameWin, TxTypeGameLoss, TxTypeHouseCut:
		return true
	}
	return false
}

// Outcome reports whether s is a terminal status a pending transaction can move to
func (s Status) Outcome() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Entry describes a ledger movement to record
type Entry struct {
	UserID        string
	Amount        decimal.Decimal
	Direction     Direction
	TxType        TxType
	Description   string
	ReferenceType ReferenceType
	ReferenceID   string
	Metadata      map[string]any
}

type RecordRequest struct {
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   Direction       `json:"direction"`
	TxType      TxType          `json:"tx_type"`
	Description string          `json:"description"`
}

type SettleRequest struct {
	Outcome Status `json:"outcome"`
}

type BalanceResponse struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Available decimal.Decimal `json:"available"`
}
