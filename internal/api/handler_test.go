package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"betting_ledger/internal/apperr"
	"betting_ledger/internal/database"
	"betting_ledger/internal/game"
	"betting_ledger/internal/ledger"
	"betting_ledger/internal/payment"
	"betting_ledger/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) Record(ctx context.Context, userID string, amount decimal.Decimal, direction ledger.Direction, txType ledger.TxType, description string) (string, error) {
	args := m.Called(ctx, userID, amount, direction, txType, description)
	return args.String(0), args.Error(1)
}

func (m *MockWalletService) Settle(ctx context.Context, transactionID string, outcome ledger.Status) error {
	args := m.Called(ctx, transactionID, outcome)
	return args.Error(0)
}

func (m *MockWalletService) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockWalletService) Available(ctx context.Context, userID string) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockWalletService) History(ctx context.Context, userID string, limit int) ([]ledger.WalletTransaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.WalletTransaction), args.Error(1)
}

func (m *MockWalletService) Get(ctx context.Context, transactionID string) (*ledger.WalletTransaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.WalletTransaction), args.Error(1)
}

type MockGameService struct {
	mock.Mock
}

func (m *MockGameService) Create(ctx context.Context, req game.CreateRequest) (*game.Game, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*game.Game), args.Error(1)
}

func (m *MockGameService) Join(ctx context.Context, gameID, userID string) (*game.GameEntry, error) {
	args := m.Called(ctx, gameID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*game.GameEntry), args.Error(1)
}

func (m *MockGameService) Start(ctx context.Context, gameID string) (*game.Game, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*game.Game), args.Error(1)
}

func (m *MockGameService) Settle(ctx context.Context, gameID string, outcomes map[string]game.Result) (*game.GameDetail, error) {
	args := m.Called(ctx, gameID, outcomes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*game.GameDetail), args.Error(1)
}

func (m *MockGameService) Cancel(ctx context.Context, gameID string) (*game.GameDetail, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*game.GameDetail), args.Error(1)
}

func (m *MockGameService) Get(ctx context.Context, gameID string) (*game.GameDetail, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*game.GameDetail), args.Error(1)
}

func (m *MockGameService) GetByCode(ctx context.Context, code string) (*game.GameDetail, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*game.GameDetail), args.Error(1)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) InitiateDeposit(ctx context.Context, req payment.InitiateRequest) (*payment.Payment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentService) InitiateWithdrawal(ctx context.Context, req payment.InitiateRequest) (*payment.Payment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentService) Reconcile(ctx context.Context, paymentID, gatewayStatus, message string) (*payment.Payment, error) {
	args := m.Called(ctx, paymentID, gatewayStatus, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentService) ReconcileByGateway(ctx context.Context, cb payment.Callback) (*payment.Payment, error) {
	args := m.Called(ctx, cb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentService) Get(ctx context.Context, paymentID string) (*payment.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentService) ListByUser(ctx context.Context, userID string, limit int) ([]payment.Payment, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Payment), args.Error(1)
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ledger.ErrInvalidAmount, http.StatusBadRequest},
		{apperr.Invalid("name", "is required"), http.StatusBadRequest},
		{ledger.ErrTransactionNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", game.ErrGameNotFound), http.StatusNotFound},
		{ledger.ErrInsufficientFunds, http.StatusPaymentRequired},
		{users.ErrInvalidCredentials, http.StatusUnauthorized},
		{game.ErrGameFull, http.StatusConflict},
		{ledger.ErrAlreadySettled, http.StatusConflict},
		{ledger.ErrOwnedTransaction, http.StatusConflict},
		{payment.ErrLinkMismatch, http.StatusConflict},
		{fmt.Errorf("%w: %w", database.ErrStoreUnavailable, context.DeadlineExceeded), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestBalanceEndpoint(t *testing.T) {
	wallet := new(MockWalletService)
	r := newRouter(NewHandler(nil, wallet, nil, nil, nil, nil))

	wallet.On("Balance", mock.Anything, "u1").Return(decimal.RequireFromString("140"), nil)
	wallet.On("Available", mock.Anything, "u1").Return(decimal.RequireFromString("90"), nil)

	w := do(r, http.MethodGet, "/users/u1/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ledger.BalanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.True(t, decimal.RequireFromString("140").Equal(resp.Balance))
	assert.True(t, decimal.RequireFromString("90").Equal(resp.Available))
	wallet.AssertExpectations(t)
}

func TestBalanceEndpointUnknownUser(t *testing.T) {
	wallet := new(MockWalletService)
	r := newRouter(NewHandler(nil, wallet, nil, nil, nil, nil))
	wallet.On("Balance", mock.Anything, "ghost").Return(decimal.Zero, users.ErrUserNotFound)

	w := do(r, http.MethodGet, "/users/ghost/balance", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordTransactionInsufficientFunds(t *testing.T) {
	wallet := new(MockWalletService)
	r := newRouter(NewHandler(nil, wallet, nil, nil, nil, nil))
	wallet.On("Record", mock.Anything, "u1", mock.AnythingOfType("decimal.Decimal"), ledger.DirectionDebit, ledger.TxTypeWithdrawal, "cash out").
		Return("", ledger.ErrInsufficientFunds)

	w := do(r, http.MethodPost, "/transactions", map[string]interface{}{
		"user_id":     "u1",
		"amount":      "500",
		"direction":   "debit",
		"tx_type":     "withdrawal",
		"description": "cash out",
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	wallet.AssertExpectations(t)
}

func TestSettleTransactionTwice(t *testing.T) {
	wallet := new(MockWalletService)
	r := newRouter(NewHandler(nil, wallet, nil, nil, nil, nil))
	wallet.On("Settle", mock.Anything, "t1", ledger.StatusSuccess).Return(nil).Once()
	wallet.On("Settle", mock.Anything, "t1", ledger.StatusSuccess).Return(ledger.ErrAlreadySettled).Once()

	w := do(r, http.MethodPost, "/transactions/t1/settle", map[string]string{"outcome": "success"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/transactions/t1/settle", map[string]string{"outcome": "success"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSettleGamePassesOutcomes(t *testing.T) {
	games := new(MockGameService)
	r := newRouter(NewHandler(nil, nil, games, nil, nil, nil))

	outcomes := map[string]game.Result{"a": game.ResultWin, "b": game.ResultLoss}
	games.On("Settle", mock.Anything, "g1", outcomes).
		Return(&game.GameDetail{Game: game.Game{ID: "g1", Status: game.StatusCompleted}}, nil)

	w := do(r, http.MethodPost, "/games/g1/settle", map[string]interface{}{"outcomes": outcomes})
	require.Equal(t, http.StatusOK, w.Code)

	var detail game.GameDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, game.StatusCompleted, detail.Status)
	games.AssertExpectations(t)
}

func TestJoinGameFull(t *testing.T) {
	games := new(MockGameService)
	r := newRouter(NewHandler(nil, nil, games, nil, nil, nil))
	games.On("Join", mock.Anything, "g1", "u3").Return(nil, game.ErrGameFull)

	w := do(r, http.MethodPost, "/games/g1/join", map[string]string{"user_id": "u3"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFindGameRequiresCode(t *testing.T) {
	r := newRouter(NewHandler(nil, nil, new(MockGameService), nil, nil, nil))
	w := do(r, http.MethodGet, "/games", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGatewayCallbackEndpoint(t *testing.T) {
	payments := new(MockPaymentService)
	r := newRouter(NewHandler(nil, nil, nil, nil, payments, nil))

	payments.On("ReconcileByGateway", mock.Anything, mock.MatchedBy(func(cb payment.Callback) bool {
		return cb.PhoneNumber == "0911" && cb.Status == "SUCCESSFUL" && cb.Amount.Equal(decimal.NewFromInt(20))
	})).Return(&payment.Payment{ID: "p1", Status: ledger.StatusSuccess}, nil)

	w := do(r, http.MethodPost, "/payments/callback", map[string]interface{}{
		"phone_number": "0911",
		"amount":       20,
		"status":       "SUCCESSFUL",
	})
	require.Equal(t, http.StatusOK, w.Code)
	payments.AssertExpectations(t)
}

func TestReconcileEndpointConflict(t *testing.T) {
	payments := new(MockPaymentService)
	r := newRouter(NewHandler(nil, nil, nil, nil, payments, nil))
	payments.On("Reconcile", mock.Anything, "p1", "FAILED", "late").Return(nil, payment.ErrAlreadySettled)

	w := do(r, http.MethodPost, "/payments/p1/reconcile", map[string]string{"status": "FAILED", "message": "late"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	r := newRouter(NewHandler(nil, new(MockWalletService), nil, nil, nil, nil))
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
