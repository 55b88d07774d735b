package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"betting_ledger/internal/apperr"
	"betting_ledger/internal/config"
	"betting_ledger/internal/database"
	"betting_ledger/internal/events"
	"betting_ledger/internal/ledger"
	"betting_ledger/internal/users"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const gameCodeAttempts = 5

type Service struct {
	runner    *database.Runner
	repo      GameRepository
	wallet    *ledger.Service
	cfg       *config.Config
	houseID   string
	publisher events.Publisher
}

func NewService(runner *database.Runner, repo GameRepository, wallet *ledger.Service, cfg *config.Config, houseID string, publisher events.Publisher) *Service {
	return &Service{
		runner:    runner,
		repo:      repo,
		wallet:    wallet,
		cfg:       cfg,
		houseID:   houseID,
		publisher: publisher,
	}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Game, error) {
	if req.CreatorID == "" {
		return nil, apperr.Invalid("creator_id", "is required")
	}
	if !apperr.IsID(req.CreatorID) {
		return nil, users.ErrUserNotFound
	}
	if !s.cfg.KnownGameType(req.GameType) {
		return nil, apperr.Invalid("game_type", fmt.Sprintf("unknown game type %q", req.GameType))
	}
	if !req.StakeAmount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}
	if !req.StakeAmount.Equal(req.StakeAmount.Truncate(2)) {
		return nil, apperr.Invalid("stake_amount", "must have at most 2 decimal places")
	}

	var g *Game
	var err error
	for attempt := 0; attempt < gameCodeAttempts; attempt++ {
		now := time.Now()
		g = &Game{
			GameCode:    newGameCode(),
			GameType:    req.GameType,
			CreatorID:   req.CreatorID,
			StakeAmount: req.StakeAmount,
			TotalPot:    decimal.Zero,
			Status:      StatusWaiting,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err = s.runner.InTx(ctx, func(tx *gorm.DB) error {
			return s.repo.Create(ctx, tx, g)
		})
		if !errors.Is(err, ErrDuplicateGameCode) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"game_id":   g.ID,
		"game_code": g.GameCode,
		"game_type": g.GameType,
		"stake":     g.StakeAmount.StringFixed(2),
	}).Info("Game created")

	return g, nil
}

// Join charges the stake and adds the user to a waiting game
func (s *Service) Join(ctx context.Context, gameID, userID string) (*GameEntry, error) {
	if userID == "" {
		return nil, apperr.Invalid("user_id", "is required")
	}
	if !apperr.IsID(userID) {
		return nil, users.ErrUserNotFound
	}

	var entry *GameEntry
	var g *Game
	var evts []events.Event
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		evts = nil
		var err error
		g, err = s.repo.LockByID(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if g.Status != StatusWaiting {
			return ErrGameNotJoinable
		}

		joined, err := s.repo.HasEntry(ctx, tx, g.ID, userID)
		if err != nil {
			return err
		}
		if joined {
			return ErrAlreadyJoined
		}

		if limit := s.cfg.MaxPlayers(g.GameType); limit > 0 {
			count, err := s.repo.CountEntries(ctx, tx, g.ID)
			if err != nil {
				return err
			}
			if count >= int64(limit) {
				return ErrGameFull
			}
		}

		stake, err := s.wallet.PostTx(ctx, tx, ledger.Entry{
			UserID:        userID,
			Amount:        g.StakeAmount,
			Direction:     ledger.DirectionDebit,
			TxType:        ledger.TxTypeGameLoss,
			Description:   fmt.Sprintf("Stake for game %s", g.GameCode),
			ReferenceType: ledger.ReferenceGame,
			ReferenceID:   g.ID,
		})
		if err != nil {
			return err
		}

		now := time.Now()
		entry = &GameEntry{
			GameID:       g.ID,
			UserID:       userID,
			StakeAmount:  g.StakeAmount,
			WalletTxID:   &stake.ID,
			PayoutAmount: decimal.Zero,
			JoinedAt:     now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.CreateEntry(ctx, tx, entry); err != nil {
			return err
		}

		g.TotalPot = g.TotalPot.Add(g.StakeAmount)
		if err := s.repo.Update(ctx, tx, g); err != nil {
			return err
		}

		evts = append(evts,
			events.New(events.EventTypeGameJoined, []string{userID}, map[string]any{
				"game_id":   g.ID,
				"game_code": g.GameCode,
				"total_pot": g.TotalPot.StringFixed(2),
			}),
			ledger.SettledEvent(stake),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"game_id":   g.ID,
		"user_id":   userID,
		"total_pot": g.TotalPot.StringFixed(2),
	}).Info("User joined game")

	events.Emit(ctx, s.publisher, evts...)
	return entry, nil
}

func (s *Service) Start(ctx context.Context, gameID string) (*Game, error) {
	var g *Game
	var entrants []string
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		g, err = s.repo.LockByID(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if g.Status != StatusWaiting {
			return ErrGameNotWaiting
		}

		entries, err := s.repo.ListEntries(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		if len(entries) < s.cfg.MinPlayers(g.GameType) {
			return ErrNotEnoughPlayers
		}
		entrants = userIDs(entries)

		now := time.Now()
		g.Status = StatusInProgress
		g.StartedAt = &now
		return s.repo.Update(ctx, tx, g)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"game_id": g.ID,
		"players": len(entrants),
	}).Info("Game started")

	events.Emit(ctx, s.publisher, events.New(events.EventTypeGameStarted, entrants, map[string]any{
		"game_id":   g.ID,
		"game_code": g.GameCode,
	}))
	return g, nil
}

// Settle records every entrant's result and pays the pot out. The whole
// settlement commits or nothing does.
func (s *Service) Settle(ctx context.Context, gameID string, outcomes map[string]Result) (*GameDetail, error) {
	if len(outcomes) == 0 {
		return nil, apperr.Invalid("outcomes", "are required")
	}

	var detail *GameDetail
	var evts []events.Event
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		evts = nil
		g, err := s.repo.LockByID(ctx, tx, gameID)
		if err != nil {
			return err
		}
		switch g.Status {
		case StatusInProgress:
		case StatusCompleted:
			return ErrAlreadyCompleted
		default:
			return ErrGameNotInProgress
		}

		entries, err := s.repo.ListEntries(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		stakes := make([]Stake, 0, len(entries))
		for _, e := range entries {
			stakes = append(stakes, Stake{UserID: e.UserID, Amount: e.StakeAmount})
		}

		split, err := SplitPot(g.TotalPot, stakes, outcomes, s.cfg.HouseCutRate, s.cfg.DrawRefundCutRate)
		if err != nil {
			return err
		}

		for i, p := range split.Payouts {
			if p.Amount.IsPositive() {
				credit, err := s.wallet.PostTx(ctx, tx, ledger.Entry{
					UserID:        p.UserID,
					Amount:        p.Amount,
					Direction:     ledger.DirectionCredit,
					TxType:        p.TxType(),
					Description:   fmt.Sprintf("Payout for game %s (%s)", g.GameCode, p.Result),
					ReferenceType: ledger.ReferenceGame,
					ReferenceID:   g.ID,
					Metadata:      map[string]any{"result": p.Result},
				})
				if err != nil {
					return err
				}
				evts = append(evts, ledger.SettledEvent(credit))
			}

			result := p.Result
			entries[i].Result = &result
			entries[i].PayoutAmount = p.Amount
			if err := s.repo.UpdateEntry(ctx, tx, &entries[i]); err != nil {
				return err
			}
		}

		if split.HouseCut.IsPositive() {
			cut, err := s.wallet.PostTx(ctx, tx, ledger.Entry{
				UserID:        s.houseID,
				Amount:        split.HouseCut,
				Direction:     ledger.DirectionCredit,
				TxType:        ledger.TxTypeHouseCut,
				Description:   fmt.Sprintf("House cut for game %s", g.GameCode),
				ReferenceType: ledger.ReferenceGame,
				ReferenceID:   g.ID,
			})
			if err != nil {
				return err
			}
			evts = append(evts, ledger.SettledEvent(cut))
		}

		now := time.Now()
		g.Status = StatusCompleted
		g.CompletedAt = &now
		if err := s.repo.Update(ctx, tx, g); err != nil {
			return err
		}

		detail = &GameDetail{Game: *g, Entries: entries}
		evts = append([]events.Event{events.New(events.EventTypeGameSettled, userIDs(entries), map[string]any{
			"game_id":   g.ID,
			"game_code": g.GameCode,
			"total_pot": g.TotalPot.StringFixed(2),
			"house_cut": split.HouseCut.StringFixed(2),
		})}, evts...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"game_id":   detail.ID,
		"total_pot": detail.TotalPot.StringFixed(2),
		"entries":   len(detail.Entries),
	}).Info("Game settled")

	events.Emit(ctx, s.publisher, evts...)
	return detail, nil
}

// Cancel refunds every stake of a game that never started
func (s *Service) Cancel(ctx context.Context, gameID string) (*GameDetail, error) {
	var detail *GameDetail
	var evts []events.Event
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		evts = nil
		g, err := s.repo.LockByID(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if g.Status != StatusWaiting {
			return ErrGameNotWaiting
		}

		entries, err := s.repo.ListEntries(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			refund, err := s.wallet.PostTx(ctx, tx, ledger.Entry{
				UserID:        e.UserID,
				Amount:        e.StakeAmount,
				Direction:     ledger.DirectionCredit,
				TxType:        ledger.TxTypeGameLoss,
				Description:   fmt.Sprintf("Refund for cancelled game %s", g.GameCode),
				ReferenceType: ledger.ReferenceGame,
				ReferenceID:   g.ID,
				Metadata:      map[string]any{"refund_of": e.WalletTxID},
			})
			if err != nil {
				return err
			}
			evts = append(evts, ledger.SettledEvent(refund))
		}

		now := time.Now()
		g.TotalPot = decimal.Zero
		g.Status = StatusCancelled
		g.CompletedAt = &now
		if err := s.repo.Update(ctx, tx, g); err != nil {
			return err
		}

		detail = &GameDetail{Game: *g, Entries: entries}
		evts = append([]events.Event{events.New(events.EventTypeGameCancelled, userIDs(entries), map[string]any{
			"game_id":   g.ID,
			"game_code": g.GameCode,
		})}, evts...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"game_id":  detail.ID,
		"refunded": len(detail.Entries),
	}).Info("Game cancelled")

	events.Emit(ctx, s.publisher, evts...)
	return detail, nil
}

func (s *Service) Get(ctx context.Context, gameID string) (*GameDetail, error) {
	return s.detail(ctx, func(db *gorm.DB) (*Game, error) {
		return s.repo.GetByID(ctx, db, gameID)
	})
}

func (s *Service) GetByCode(ctx context.Context, code string) (*GameDetail, error) {
	return s.detail(ctx, func(db *gorm.DB) (*Game, error) {
		return s.repo.GetByCode(ctx, db, strings.ToUpper(code))
	})
}

func (s *Service) detail(ctx context.Context, get func(db *gorm.DB) (*Game, error)) (*GameDetail, error) {
	var detail *GameDetail
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		g, err := get(db)
		if err != nil {
			return err
		}
		entries, err := s.repo.ListEntries(ctx, db, g.ID)
		if err != nil {
			return err
		}
		detail = &GameDetail{Game: *g, Entries: entries}
		return nil
	})
	return detail, err
}

func userIDs(entries []GameEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}

func newGameCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}
