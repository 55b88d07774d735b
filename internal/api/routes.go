package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	u := r.Group("/users")
	u.POST("", h.registerUser)
	u.POST("/login", h.login)
	u.GET("/:id/balance", h.balance)
	u.GET("/:id/transactions", h.history)
	u.GET("/:id/payments", h.userPayments)
	u.GET("/:id/events", h.streamEvents)

	tx := r.Group("/transactions")
	tx.POST("", h.recordTransaction)
	tx.GET("/:id", h.getTransaction)
	tx.POST("/:id/settle", h.settleTransaction)

	g := r.Group("/games")
	g.POST("", h.createGame)
	g.GET("", h.findGame)
	g.GET("/:id", h.getGame)
	g.POST("/:id/join", h.joinGame)
	g.POST("/:id/start", h.startGame)
	g.POST("/:id/settle", h.settleGame)
	g.POST("/:id/cancel", h.cancelGame)

	t := r.Group("/tournaments")
	t.POST("", h.createTournament)
	t.GET("/:id", h.getTournament)
	t.POST("/:id/register", h.registerTournament)
	t.POST("/:id/start", h.startTournament)
	t.POST("/:id/advance", h.advanceTournament)
	t.POST("/:id/game", h.attachTournamentGame)

	p := r.Group("/payments")
	p.POST("/deposit", h.deposit)
	p.POST("/withdraw", h.withdraw)
	p.POST("/callback", h.gatewayCallback)
	p.GET("/:id", h.getPayment)
	p.POST("/:id/reconcile", h.reconcile)
}
