package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"betting_ledger/internal/apperr"
	"betting_ledger/internal/database"
	"betting_ledger/internal/events"
	"betting_ledger/internal/game"
	"betting_ledger/internal/ledger"
	"betting_ledger/internal/payment"
	"betting_ledger/internal/tournament"
	"betting_ledger/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type UserService interface {
	Register(ctx context.Context, req users.RegisterRequest) (*users.User, error)
	Authenticate(ctx context.Context, req users.LoginRequest) (*users.User, error)
	Get(ctx context.Context, id string) (*users.User, error)
}

type WalletService interface {
	Record(ctx context.Context, userID string, amount decimal.Decimal, direction ledger.Direction, txType ledger.TxType, description string) (string, error)
	Settle(ctx context.Context, transactionID string, outcome ledger.Status) error
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Available(ctx context.Context, userID string) (decimal.Decimal, error)
	History(ctx context.Context, userID string, limit int) ([]ledger.WalletTransaction, error)
	Get(ctx context.Context, transactionID string) (*ledger.WalletTransaction, error)
}

type GameService interface {
	Create(ctx context.Context, req game.CreateRequest) (*game.Game, error)
	Join(ctx context.Context, gameID, userID string) (*game.GameEntry, error)
	Start(ctx context.Context, gameID string) (*game.Game, error)
	Settle(ctx context.Context, gameID string, outcomes map[string]game.Result) (*game.GameDetail, error)
	Cancel(ctx context.Context, gameID string) (*game.GameDetail, error)
	Get(ctx context.Context, gameID string) (*game.GameDetail, error)
	GetByCode(ctx context.Context, code string) (*game.GameDetail, error)
}

type TournamentService interface {
	Create(ctx context.Context, req tournament.CreateRequest) (*tournament.Tournament, error)
	Register(ctx context.Context, tournamentID, userID string) (*tournament.TournamentEntry, error)
	Start(ctx context.Context, tournamentID string) (*tournament.Tournament, error)
	Advance(ctx context.Context, tournamentID string, result tournament.RoundResult) (*tournament.TournamentDetail, error)
	AttachGame(ctx context.Context, tournamentID, gameID string) (*tournament.Tournament, error)
	Get(ctx context.Context, tournamentID string) (*tournament.TournamentDetail, error)
}

type PaymentService interface {
	InitiateDeposit(ctx context.Context, req payment.InitiateRequest) (*payment.Payment, error)
	InitiateWithdrawal(ctx context.Context, req payment.InitiateRequest) (*payment.Payment, error)
	Reconcile(ctx context.Context, paymentID, gatewayStatus, message string) (*payment.Payment, error)
	ReconcileByGateway(ctx context.Context, cb payment.Callback) (*payment.Payment, error)
	Get(ctx context.Context, paymentID string) (*payment.Payment, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]payment.Payment, error)
}

// EventSubscriber streams committed events concerning one user
type EventSubscriber interface {
	Subscribe(userID string) (<-chan events.Event, func())
}

type Handler struct {
	users       UserService
	wallet      WalletService
	games       GameService
	tournaments TournamentService
	payments    PaymentService
	subscriber  EventSubscriber
}

func NewHandler(userSvc UserService, walletSvc WalletService, gameSvc GameService, tournamentSvc TournamentService, paymentSvc PaymentService, subscriber EventSubscriber) *Handler {
	return &Handler{
		users:       userSvc,
		wallet:      walletSvc,
		games:       gameSvc,
		tournaments: tournamentSvc,
		payments:    paymentSvc,
		subscriber:  subscriber,
	}
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, database.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"error":  err,
		}).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		return 0
	}
	return limit
}
