package tournament

import (
	"context"
	"fmt"
	"strings"
	"time"

	"betting_ledger/internal/apperr"
	"betting_ledger/internal/config"
	"betting_ledger/internal/database"
	"betting_ledger/internal/events"
	"betting_ledger/internal/ledger"
	"betting_ledger/internal/users"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const minPlayers = 2

type Service struct {
	runner    *database.Runner
	repo      TournamentRepository
	wallet    *ledger.Service
	cfg       *config.Config
	houseID   string
	publisher events.Publisher
}

func NewService(runner *database.Runner, repo TournamentRepository, wallet *ledger.Service, cfg *config.Config, houseID string, publisher events.Publisher) *Service {
	return &Service{
		runner:    runner,
		repo:      repo,
		wallet:    wallet,
		cfg:       cfg,
		houseID:   houseID,
		publisher: publisher,
	}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Tournament, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Invalid("name", "is required")
	}
	if !s.cfg.KnownGameType(req.GameType) {
		return nil, apperr.Invalid("game_type", fmt.Sprintf("unknown game type %q", req.GameType))
	}
	if !req.EntryFee.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}
	if !req.EntryFee.Equal(req.EntryFee.Truncate(2)) {
		return nil, apperr.Invalid("entry_fee", "must have at most 2 decimal places")
	}
	if req.MaxPlayers < minPlayers {
		return nil, apperr.Invalid("max_players", fmt.Sprintf("must be at least %d", minPlayers))
	}

	now := time.Now()
	t := &Tournament{
		Name:       name,
		GameType:   req.GameType,
		EntryFee:   req.EntryFee,
		MaxPlayers: req.MaxPlayers,
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		return s.repo.Create(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"tournament_id": t.ID,
		"entry_fee":     t.EntryFee.StringFixed(2),
		"max_players":   t.MaxPlayers,
	}).Info("Tournament created")

	return t, nil
}

// Register charges the entry fee and enters the user into an open tournament
func (s *Service) Register(ctx context.Context, tournamentID, userID string) (*TournamentEntry, error) {
	if userID == "" {
		return nil, apperr.Invalid("user_id", "is required")
	}
	if !apperr.IsID(userID) {
		return nil, users.ErrUserNotFound
	}

	var entry *TournamentEntry
	var evts []events.Event
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		evts = nil
		t, err := s.repo.LockByID(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != StatusOpen {
			return ErrTournamentClosed
		}

		registered, err := s.repo.HasEntry(ctx, tx, t.ID, userID)
		if err != nil {
			return err
		}
		if registered {
			return ErrAlreadyRegistered
		}

		count, err := s.repo.CountEntries(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if count >= int64(t.MaxPlayers) {
			return ErrTournamentFull
		}

		fee, err := s.wallet.PostTx(ctx, tx, ledger.Entry{
			UserID:        userID,
			Amount:        t.EntryFee,
			Direction:     ledger.DirectionDebit,
			TxType:        ledger.TxTypeGameLoss,
			Description:   fmt.Sprintf("Entry fee for tournament %s", t.Name),
			ReferenceType: ledger.ReferenceTournament,
			ReferenceID:   t.ID,
		})
		if err != nil {
			return err
		}

		now := time.Now()
		entry = &TournamentEntry{
			TournamentID: t.ID,
			UserID:       userID,
			Status:       EntryActive,
			WalletTxID:   &fee.ID,
			JoinedAt:     now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.CreateEntry(ctx, tx, entry); err != nil {
			return err
		}

		evts = append(evts,
			events.New(events.EventTypeTournamentJoined, []string{userID}, map[string]any{
				"tournament_id": t.ID,
				"entries":       count + 1,
			}),
			ledger.SettledEvent(fee),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"tournament_id": tournamentID,
		"user_id":       userID,
	}).Info("User registered for tournament")

	events.Emit(ctx, s.publisher, evts...)
	return entry, nil
}

func (s *Service) Start(ctx context.Context, tournamentID string) (*Tournament, error) {
	var t *Tournament
	var entrants []string
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		t, err = s.repo.LockByID(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != StatusOpen {
			return ErrTournamentClosed
		}

		entries, err := s.repo.ListEntries(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if len(entries) < minPlayers {
			return ErrNotEnoughPlayers
		}
		entrants = userIDs(entries)

		t.Status = StatusInProgress
		t.Round = 1
		return s.repo.Update(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"tournament_id": t.ID,
		"players":       len(entrants),
	}).Info("Tournament started")

	events.Emit(ctx, s.publisher, events.New(events.EventTypeTournamentStarted, entrants, map[string]any{
		"tournament_id": t.ID,
	}))
	return t, nil
}

// Advance closes the current round. When a single entrant is left standing
// the tournament completes and the pool is paid out.
func (s *Service) Advance(ctx context.Context, tournamentID string, result RoundResult) (*TournamentDetail, error) {
	var detail *TournamentDetail
	var evts []events.Event
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		evts = nil
		t, err := s.repo.LockByID(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		switch t.Status {
		case StatusInProgress:
		case StatusCompleted:
			return ErrAlreadyCompleted
		default:
			return ErrTournamentNotStarted
		}

		entries, err := s.repo.ListEntries(ctx, tx, t.ID)
		if err != nil {
			return err
		}

		changed, winner, err := eliminate(entries, result.Eliminated, t.Round)
		if err != nil {
			return err
		}
		for _, i := range changed {
			if err := s.repo.UpdateEntry(ctx, tx, &entries[i]); err != nil {
				return err
			}
		}

		if winner < 0 {
			t.Round++
		} else {
			winnerID := entries[winner].UserID
			pool := t.EntryFee.Mul(decimal.NewFromInt(int64(len(entries))))
			winnings, cut := prize(pool, s.cfg.HouseCutRate)

			payouts, err := s.payOut(ctx, tx, t, winnerID, winnings, cut)
			if err != nil {
				return err
			}

			t.Status = StatusCompleted
			t.WinnerID = &winnerID
			evts = append(evts, events.New(events.EventTypeTournamentCompleted, userIDs(entries), map[string]any{
				"tournament_id": t.ID,
				"winner_id":     winnerID,
				"pool":          pool.StringFixed(2),
				"prize":         winnings.StringFixed(2),
			}))
			evts = append(evts, payouts...)
		}

		if err := s.repo.Update(ctx, tx, t); err != nil {
			return err
		}
		detail = &TournamentDetail{Tournament: *t, Entries: entries}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := log.Fields{
		"tournament_id": detail.ID,
		"eliminated":    len(result.Eliminated),
		"round":         detail.Round,
	}
	if detail.WinnerID != nil {
		fields["winner_id"] = *detail.WinnerID
		log.WithFields(fields).Info("Tournament completed")
	} else {
		log.WithFields(fields).Info("Tournament round advanced")
	}

	events.Emit(ctx, s.publisher, evts...)
	return detail, nil
}

func (s *Service) payOut(ctx context.Context, tx *gorm.DB, t *Tournament, winnerID string, winnings, cut decimal.Decimal) ([]events.Event, error) {
	var evts []events.Event
	if winnings.IsPositive() {
		credit, err := s.wallet.PostTx(ctx, tx, ledger.Entry{
			UserID:        winnerID,
			Amount:        winnings,
			Direction:     ledger.DirectionCredit,
			TxType:        ledger.TxTypeGameWin,
			Description:   fmt.Sprintf("Prize for tournament %s", t.Name),
			ReferenceType: ledger.ReferenceTournament,
			ReferenceID:   t.ID,
		})
		if err != nil {
			return nil, err
		}
		evts = append(evts, ledger.SettledEvent(credit))
	}
	if cut.IsPositive() {
		credit, err := s.wallet.PostTx(ctx, tx, ledger.Entry{
			UserID:        s.houseID,
			Amount:        cut,
			Direction:     ledger.DirectionCredit,
			TxType:        ledger.TxTypeHouseCut,
			Description:   fmt.Sprintf("House cut for tournament %s", t.Name),
			ReferenceType: ledger.ReferenceTournament,
			ReferenceID:   t.ID,
		})
		if err != nil {
			return nil, err
		}
		evts = append(evts, ledger.SettledEvent(credit))
	}
	return evts, nil
}

// AttachGame records the game the tournament culminates in
func (s *Service) AttachGame(ctx context.Context, tournamentID, gameID string) (*Tournament, error) {
	if gameID == "" {
		return nil, apperr.Invalid("game_id", "is required")
	}
	if !apperr.IsID(gameID) {
		return nil, fmt.Errorf("game %s: %w", gameID, apperr.ErrNotFound)
	}

	var t *Tournament
	err := s.runner.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		t, err = s.repo.LockByID(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if t.GameID != nil {
			if *t.GameID == gameID {
				return nil
			}
			return ErrGameAlreadyAttached
		}
		t.GameID = &gameID
		return s.repo.Update(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, tournamentID string) (*TournamentDetail, error) {
	var detail *TournamentDetail
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		t, err := s.repo.GetByID(ctx, db, tournamentID)
		if err != nil {
			return err
		}
		entries, err := s.repo.ListEntries(ctx, db, t.ID)
		if err != nil {
			return err
		}
		detail = &TournamentDetail{Tournament: *t, Entries: entries}
		return nil
	})
	return detail, err
}

func userIDs(entries []TournamentEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}
