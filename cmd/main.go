package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"betting_ledger/internal/api"
	"betting_ledger/internal/config"
	"betting_ledger/internal/database"
	"betting_ledger/internal/events"
	"betting_ledger/internal/game"
	"betting_ledger/internal/ledger"
	"betting_ledger/internal/payment"
	"betting_ledger/internal/schema"
	"betting_ledger/internal/tournament"
	"betting_ledger/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	config.SetupLogging(cfg.LogLevel, cfg.Environment)

	db, err := database.Open(cfg.DBConnStr, cfg.Environment)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close(db)

	if err := schema.Migrate(db); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub()
	publisher := events.MultiPublisher{hub}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = events.Connect(cfg.NATSURL, cfg.NATSToken, "betting-ledger")
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer nc.Close()
		publisher = append(publisher, events.NewNATSPublisher(nc, cfg.EventsSubjectPrefix))
	} else {
		log.Info("NATS_URL not set, events stay in process and gateway callbacks arrive over HTTP only")
	}

	runner := database.NewRunner(db, cfg.StoreMaxRetries, cfg.StoreRetryDelay, cfg.LockTimeout)

	userRepo := users.NewUserRepository(db)
	userService := users.NewService(userRepo)
	houseID, err := userService.EnsureHouseAccount(ctx, cfg.HouseUsername)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up house account")
	}

	walletService := ledger.NewService(runner, ledger.NewTransactionRepository(), userRepo, publisher)
	gameService := game.NewService(runner, game.NewGameRepository(), walletService, cfg, houseID, publisher)
	tournamentService := tournament.NewService(runner, tournament.NewTournamentRepository(), walletService, cfg, houseID, publisher)
	paymentService := payment.NewService(runner, payment.NewPaymentRepository(), walletService, publisher)

	if nc != nil {
		listener := payment.NewGatewayListener(nc, cfg.GatewayCallbackTopic, paymentService)
		if err := listener.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start gateway listener")
		}
		defer func() {
			if err := listener.Stop(); err != nil {
				log.WithError(err).Warn("Failed to drain gateway listener")
			}
		}()
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	handler := api.NewHandler(userService, walletService, gameService, tournamentService, paymentService, hub)
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		log.WithFields(log.Fields{
			"addr":     cfg.HTTPAddr,
			"house_id": houseID,
		}).Info("Server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}
