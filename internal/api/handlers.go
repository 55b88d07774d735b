package api

import (
	"io"
	"net/http"

	"betting_ledger/internal/game"
	"betting_ledger/internal/ledger"
	"betting_ledger/internal/payment"
	"betting_ledger/internal/tournament"
	"betting_ledger/internal/users"

	"github.com/gin-gonic/gin"
)

func (h *Handler) registerUser(c *gin.Context) {
	var req users.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) login(c *gin.Context) {
	var req users.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.users.Authenticate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) balance(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("id")

	balance, err := h.wallet.Balance(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	available, err := h.wallet.Available(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger.BalanceResponse{
		UserID:    userID,
		Balance:   balance,
		Available: available,
	})
}

func (h *Handler) history(c *gin.Context) {
	txs, err := h.wallet.History(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *Handler) userPayments(c *gin.Context) {
	payments, err := h.payments.ListByUser(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// streamEvents pushes the user's events as server-sent events until the client leaves
func (h *Handler) streamEvents(c *gin.Context) {
	ch, cancel := h.subscriber.Subscribe(c.Param("id"))
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		}
	})
}

func (h *Handler) recordTransaction(c *gin.Context) {
	var req ledger.RecordRequest
	if !bindJSON(c, &req) {
		return
	}
	id, err := h.wallet.Record(c.Request.Context(), req.UserID, req.Amount, req.Direction, req.TxType, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction_id": id, "status": ledger.StatusPending})
}

func (h *Handler) getTransaction(c *gin.Context) {
	t, err := h.wallet.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) settleTransaction(c *gin.Context) {
	var req ledger.SettleRequest
	if !bindJSON(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.wallet.Settle(c.Request.Context(), id, req.Outcome); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": id, "status": req.Outcome})
}

func (h *Handler) createGame(c *gin.Context) {
	var req game.CreateRequest
	if !bindJSON(c, &req) {
		return
	}
	g, err := h.games.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *Handler) findGame(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code query parameter is required"})
		return
	}
	g, err := h.games.GetByCode(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) getGame(c *gin.Context) {
	g, err := h.games.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) joinGame(c *gin.Context) {
	var req game.JoinRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.games.Join(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) startGame(c *gin.Context) {
	g, err := h.games.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) settleGame(c *gin.Context) {
	var req game.SettleRequest
	if !bindJSON(c, &req) {
		return
	}
	detail, err := h.games.Settle(c.Request.Context(), c.Param("id"), req.Outcomes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) cancelGame(c *gin.Context) {
	detail, err := h.games.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) createTournament(c *gin.Context) {
	var req tournament.CreateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.tournaments.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) getTournament(c *gin.Context) {
	t, err := h.tournaments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) registerTournament(c *gin.Context) {
	var req tournament.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.tournaments.Register(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) startTournament(c *gin.Context) {
	t, err := h.tournaments.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) advanceTournament(c *gin.Context) {
	var req tournament.RoundResult
	if !bindJSON(c, &req) {
		return
	}
	detail, err := h.tournaments.Advance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) attachTournamentGame(c *gin.Context) {
	var req tournament.AttachGameRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.tournaments.AttachGame(c.Request.Context(), c.Param("id"), req.GameID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) deposit(c *gin.Context) {
	var req payment.InitiateRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.payments.InitiateDeposit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, p)
}

func (h *Handler) withdraw(c *gin.Context) {
	var req payment.InitiateRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.payments.InitiateWithdrawal(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, p)
}

func (h *Handler) getPayment(c *gin.Context) {
	p, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) reconcile(c *gin.Context) {
	var req payment.ReconcileRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.payments.Reconcile(c.Request.Context(), c.Param("id"), req.Status, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) gatewayCallback(c *gin.Context) {
	var cb payment.Callback
	if !bindJSON(c, &cb) {
		return
	}
	p, err := h.payments.ReconcileByGateway(c.Request.Context(), cb)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
