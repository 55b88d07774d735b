package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betting_ledger/internal/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrGameNotFound      = apperr.NotFound("game")
	ErrGameFull          = apperr.Conflict("game is full")
	ErrGameNotJoinable   = apperr.Conflict("game is not accepting entries")
	ErrAlreadyJoined     = apperr.Conflict("user already joined this game")
	ErrNotEnoughPlayers  = apperr.Conflict("not enough players to start")
	ErrGameNotWaiting    = apperr.Conflict("game is not waiting for players")
	ErrGameNotInProgress = apperr.Conflict("game is not in progress")
	ErrAlreadyCompleted  = apperr.Conflict("game already completed")
	ErrDuplicateGameCode = errors.New("game code already in use")
)

type GameRepository interface {
	Create(ctx context.Context, tx *gorm.DB, g *Game) error
	GetByID(ctx context.Context, db *gorm.DB, id string) (*Game, error)
	GetByCode(ctx context.Context, db *gorm.DB, code string) (*Game, error)
	LockByID(ctx context.Context, tx *gorm.DB, id string) (*Game, error)
	Update(ctx context.Context, tx *gorm.DB, g *Game) error
	CreateEntry(ctx context.Context, tx *gorm.DB, e *GameEntry) error
	UpdateEntry(ctx context.Context, tx *gorm.DB, e *GameEntry) error
	ListEntries(ctx context.Context, db *gorm.DB, gameID string) ([]GameEntry, error)
	CountEntries(ctx context.Context, db *gorm.DB, gameID string) (int64, error)
	HasEntry(ctx context.Context, db *gorm.DB, gameID, userID string) (bool, error)
	SumStakes(ctx context.Context, db *gorm.DB, gameID string) (decimal.Decimal, error)
}

type GameRepositoryImpl struct{}

func NewGameRepository() *GameRepositoryImpl {
	return &GameRepositoryImpl{}
}

func (r *GameRepositoryImpl) Create(ctx context.Context, tx *gorm.DB, g *Game) error {
	err := tx.WithContext(ctx).Omit(clause.Associations).Create(g).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateGameCode
		}
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return fmt.Errorf("creator %s: %w", g.CreatorID, apperr.ErrNotFound)
		}
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

func (r *GameRepositoryImpl) GetByID(ctx context.Context, db *gorm.DB, id string) (*Game, error) {
	if !apperr.IsID(id) {
		return nil, ErrGameNotFound
	}
	return r.first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *GameRepositoryImpl) GetByCode(ctx context.Context, db *gorm.DB, code string) (*Game, error) {
	return r.first(db.WithContext(ctx).Where("game_code = ?", code))
}

// LockByID reads the game holding its row lock until tx ends
func (r *GameRepositoryImpl) LockByID(ctx context.Context, tx *gorm.DB, id string) (*Game, error) {
	if !apperr.IsID(id) {
		return nil, ErrGameNotFound
	}
	return r.first(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *GameRepositoryImpl) first(q *gorm.DB) (*Game, error) {
	var g Game
	if err := q.First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return &g, nil
}

func (r *GameRepositoryImpl) Update(ctx context.Context, tx *gorm.DB, g *Game) error {
	g.UpdatedAt = time.Now()
	err := tx.WithContext(ctx).Model(&Game{}).Where("id = ?", g.ID).Updates(map[string]interface{}{
		"total_pot":    g.TotalPot,
		"status":       g.Status,
		"started_at":   g.StartedAt,
		"completed_at": g.CompletedAt,
		"updated_at":   g.UpdatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}
	return nil
}

func (r *GameRepositoryImpl) CreateEntry(ctx context.Context, tx *gorm.DB, e *GameEntry) error {
	err := tx.WithContext(ctx).Omit(clause.Associations).Create(e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyJoined
		}
		return fmt.Errorf("failed to create game entry: %w", err)
	}
	return nil
}

func (r *GameRepositoryImpl) UpdateEntry(ctx context.Context, tx *gorm.DB, e *GameEntry) error {
	e.UpdatedAt = time.Now()
	err := tx.WithContext(ctx).Model(&GameEntry{}).Where("id = ?", e.ID).Updates(map[string]interface{}{
		"result":        e.Result,
		"payout_amount": e.PayoutAmount,
		"updated_at":    e.UpdatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update game entry: %w", err)
	}
	return nil
}

func (r *GameRepositoryImpl) ListEntries(ctx context.Context, db *gorm.DB, gameID string) ([]GameEntry, error) {
	var entries []GameEntry
	err := db.WithContext(ctx).Where("game_id = ?", gameID).Order("created_at, id").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list game entries: %w", err)
	}
	return entries, nil
}

func (r *GameRepositoryImpl) CountEntries(ctx context.Context, db *gorm.DB, gameID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&GameEntry{}).Where("game_id = ?", gameID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count game entries: %w", err)
	}
	return count, nil
}

func (r *GameRepositoryImpl) HasEntry(ctx context.Context, db *gorm.DB, gameID, userID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&GameEntry{}).
		Where("game_id = ? AND user_id = ?", gameID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check game entry: %w", err)
	}
	return count > 0, nil
}

func (r *GameRepositoryImpl) SumStakes(ctx context.Context, db *gorm.DB, gameID string) (decimal.Decimal, error) {
	var res struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Model(&GameEntry{}).
		Select("COALESCE(SUM(stake_amount), 0) AS total").
		Where("game_id = ?", gameID).
		Scan(&res).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum game stakes: %w", err)
	}
	return res.Total, nil
}
