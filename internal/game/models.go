package game

import (
	"time"

	"betting_ledger/internal/ledger"
	"betting_ledger/internal/users"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

func (r Result) Valid() bool {
	return r == ResultWin || r == ResultLoss || r == ResultDraw
}

type Game struct {
	ID          string          `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	GameCode    string          `gorm:"column:game_code;type:varchar(16);not null;uniqueIndex" json:"game_code"`
	GameType    string          `gorm:"column:game_type;type:varchar(50);not null" json:"game_type"`
	CreatorID   string          `gorm:"column:creator_id;type:uuid;not null;index" json:"creator_id"`
	StakeAmount decimal.Decimal `gorm:"column:stake_amount;type:numeric(20,2);not null" json:"stake_amount"`
	TotalPot    decimal.Decimal `gorm:"column:total_pot;type:numeric(20,2);not null;default:0" json:"total_pot"`
	Status      Status          `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	StartedAt   *time.Time      `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`

	Creator *users.User `gorm:"foreignKey:CreatorID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (Game) TableName() string { return "games" }

func (g *Game) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return nil
}

type GameEntry struct {
	ID           string          `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	GameID       string          `gorm:"column:game_id;type:uuid;not null;uniqueIndex:idx_game_entries_game_user,priority:1" json:"game_id"`
	UserID       string          `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_game_entries_game_user,priority:2;index" json:"user_id"`
	StakeAmount  decimal.Decimal `gorm:"column:stake_amount;type:numeric(20,2);not null" json:"stake_amount"`
	WalletTxID   *string         `gorm:"column:wallet_tx_id;type:uuid" json:"wallet_tx_id,omitempty"`
	Result       *Result         `gorm:"column:result;type:varchar(10)" json:"result,omitempty"`
	PayoutAmount decimal.Decimal `gorm:"column:payout_amount;type:numeric(20,2);not null;default:0" json:"payout_amount"`
	JoinedAt     time.Time       `gorm:"column:joined_at;not null" json:"joined_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`

	Game     *Game                     `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE" json:"-"`
	User     *users.User               `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT" json:"-"`
	WalletTx *ledger.WalletTransaction `gorm:"foreignKey:WalletTxID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (GameEntry) TableName() string { return "game_entries" }

func (e *GameEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// GameDetail is a game together with its entries
type GameDetail struct {
	Game
	Entries []GameEntry `json:"entries"`
}

type CreateRequest struct {
	CreatorID   string          `json:"creator_id"`
	GameType    string          `json:"game_type"`
	StakeAmount decimal.Decimal `json:"stake_amount"`
}

type JoinRequest struct {
	UserID string `json:"user_id"`
}

type SettleRequest struct {
	Outcomes map[string]Result `json:"outcomes"`
}
