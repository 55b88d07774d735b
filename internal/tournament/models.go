package tournament

import (
	"time"

	"betting_ledger/internal/game"
	"betting_ledger/internal/ledger"
	"betting_ledger/internal/users"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type EntryStatus string

const (
	EntryActive     EntryStatus = "active"
	EntryEliminated EntryStatus = "eliminated"
	EntryWinner     EntryStatus = "winner"
)

type Tournament struct {
	ID         string          `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	Name       string          `gorm:"column:name;type:varchar(120);not null" json:"name"`
	GameType   string          `gorm:"column:game_type;type:varchar(50);not null" json:"game_type"`
	EntryFee   decimal.Decimal `gorm:"column:entry_fee;type:numeric(20,2);not null" json:"entry_fee"`
	MaxPlayers int             `gorm:"column:max_players;not null" json:"max_players"`
	Status     Status          `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	WinnerID   *string         `gorm:"column:winner_id;type:uuid" json:"winner_id,omitempty"`
	GameID     *string         `gorm:"column:game_id;type:uuid" json:"game_id,omitempty"`
	Round      int             `gorm:"column:round;not null;default:0" json:"round"`
	CreatedAt  time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`

	Winner *users.User `gorm:"foreignKey:WinnerID;constraint:OnDelete:RESTRICT" json:"-"`
	Game   *game.Game  `gorm:"foreignKey:GameID;constraint:OnDelete:SET NULL" json:"-"`
}

func (Tournament) TableName() string { return "tournaments" }

func (t *Tournament) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

type TournamentEntry struct {
	ID              string      `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	TournamentID    string      `gorm:"column:tournament_id;type:uuid;not null;uniqueIndex:idx_tournament_entries_tournament_user,priority:1" json:"tournament_id"`
	UserID          string      `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_tournament_entries_tournament_user,priority:2;index" json:"user_id"`
	Status          EntryStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	WalletTxID      *string     `gorm:"column:wallet_tx_id;type:uuid" json:"wallet_tx_id,omitempty"`
	EliminatedRound *int        `gorm:"column:eliminated_round" json:"eliminated_round,omitempty"`
	JoinedAt        time.Time   `gorm:"column:joined_at;not null" json:"joined_at"`
	CreatedAt       time.Time   `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;not null" json:"updated_at"`

	Tournament *Tournament               `gorm:"foreignKey:TournamentID;constraint:OnDelete:CASCADE" json:"-"`
	User       *users.User               `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT" json:"-"`
	WalletTx   *ledger.WalletTransaction `gorm:"foreignKey:WalletTxID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (TournamentEntry) TableName() string { return "tournament_entries" }

func (e *TournamentEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

type TournamentDetail struct {
	Tournament
	Entries []TournamentEntry `json:"entries"`
}

// RoundResult lists the entrants knocked out in the round being advanced
type RoundResult struct {
	Eliminated []string `json:"eliminated"`
}

type CreateRequest struct {
	Name       string          `json:"name"`
	GameType   string          `json:"game_type"`
	EntryFee   decimal.Decimal `json:"entry_fee"`
	MaxPlayers int             `json:"max_players"`
}

type RegisterRequest struct {
	UserID string `json:"user_id"`
}

type AttachGameRequest struct {
	GameID string `json:"game_id"`
}
