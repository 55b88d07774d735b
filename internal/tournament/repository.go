package tournament

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betting_ledger/internal/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTournamentNotFound   = apperr.NotFound("tournament")
	ErrTournamentClosed     = apperr.Conflict("tournament is not open for registration")
	ErrTournamentFull       = apperr.Conflict("tournament is full")
	ErrAlreadyRegistered    = apperr.Conflict("user already registered for this tournament")
	ErrNotEnoughPlayers     = apperr.Conflict("not enough players to start the tournament")
	ErrTournamentNotStarted = apperr.Conflict("tournament has not started")
	ErrAlreadyCompleted     = apperr.Conflict("tournament already completed")
	ErrGameAlreadyAttached  = apperr.Conflict("tournament already has a game attached")
)

type TournamentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, t *Tournament) error
	GetByID(ctx context.Context, db *gorm.DB, id string) (*Tournament, error)
	LockByID(ctx context.Context, tx *gorm.DB, id string) (*Tournament, error)
	Update(ctx context.Context, tx *gorm.DB, t *Tournament) error
	CreateEntry(ctx context.Context, tx *gorm.DB, e *TournamentEntry) error
	UpdateEntry(ctx context.Context, tx *gorm.DB, e *TournamentEntry) error
	ListEntries(ctx context.Context, db *gorm.DB, tournamentID string) ([]TournamentEntry, error)
	CountEntries(ctx context.Context, db *gorm.DB, tournamentID string) (int64, error)
	HasEntry(ctx context.Context, db *gorm.DB, tournamentID, userID string) (bool, error)
}

type TournamentRepositoryImpl struct{}

func NewTournamentRepository() *TournamentRepositoryImpl {
	return &TournamentRepositoryImpl{}
}

func (r *TournamentRepositoryImpl) Create(ctx context.Context, tx *gorm.DB, t *Tournament) error {
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(t).Error; err != nil {
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *TournamentRepositoryImpl) GetByID(ctx context.Context, db *gorm.DB, id string) (*Tournament, error) {
	if !apperr.IsID(id) {
		return nil, ErrTournamentNotFound
	}
	return r.first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *TournamentRepositoryImpl) LockByID(ctx context.Context, tx *gorm.DB, id string) (*Tournament, error) {
	if !apperr.IsID(id) {
		return nil, ErrTournamentNotFound
	}
	return r.first(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *TournamentRepositoryImpl) first(q *gorm.DB) (*Tournament, error) {
	var t Tournament
	if err := q.First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}
	return &t, nil
}

func (r *TournamentRepositoryImpl) Update(ctx context.Context, tx *gorm.DB, t *Tournament) error {
	t.UpdatedAt = time.Now()
	err := tx.WithContext(ctx).Model(&Tournament{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
		"status":     t.Status,
		"winner_id":  t.WinnerID,
		"game_id":    t.GameID,
		"round":      t.Round,
		"updated_at": t.UpdatedAt,
	}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return fmt.Errorf("game: %w", apperr.ErrNotFound)
		}
		return fmt.Errorf("failed to update tournament: %w", err)
	}
	return nil
}

func (r *TournamentRepositoryImpl) CreateEntry(ctx context.Context, tx *gorm.DB, e *TournamentEntry) error {
	err := tx.WithContext(ctx).Omit(clause.Associations).Create(e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("failed to create tournament entry: %w", err)
	}
	return nil
}

func (r *TournamentRepositoryImpl) UpdateEntry(ctx context.Context, tx *gorm.DB, e *TournamentEntry) error {
	e.UpdatedAt = time.Now()
	err := tx.WithContext(ctx).Model(&TournamentEntry{}).Where("id = ?", e.ID).Updates(map[string]interface{}{
		"status":           e.Status,
		"eliminated_round": e.EliminatedRound,
		"updated_at":       e.UpdatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update tournament entry: %w", err)
	}
	return nil
}

func (r *TournamentRepositoryImpl) ListEntries(ctx context.Context, db *gorm.DB, tournamentID string) ([]TournamentEntry, error) {
	var entries []TournamentEntry
	err := db.WithContext(ctx).Where("tournament_id = ?", tournamentID).Order("created_at, id").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tournament entries: %w", err)
	}
	return entries, nil
}

func (r *TournamentRepositoryImpl) CountEntries(ctx context.Context, db *gorm.DB, tournamentID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&TournamentEntry{}).Where("tournament_id = ?", tournamentID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count tournament entries: %w", err)
	}
	return count, nil
}

func (r *TournamentRepositoryImpl) HasEntry(ctx context.Context, db *gorm.DB, tournamentID, userID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&TournamentEntry{}).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check tournament entry: %w", err)
	}
	return count > 0, nil
}
