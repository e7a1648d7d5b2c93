package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/fkhayef/sharesub/docs"
	"github.com/fkhayef/sharesub/internal/config"
	"github.com/fkhayef/sharesub/internal/database"
	"github.com/fkhayef/sharesub/internal/joinrequest"
	"github.com/fkhayef/sharesub/internal/ledger"
	"github.com/fkhayef/sharesub/internal/membership"
	"github.com/fkhayef/sharesub/internal/notification"
	"github.com/fkhayef/sharesub/internal/pool"
	"github.com/fkhayef/sharesub/internal/user"
	"github.com/fkhayef/sharesub/internal/worker"
	mw "github.com/fkhayef/sharesub/pkg/middleware"
)

// @title           ShareSub API
// @version         1.0
// @description     Subscription slot sharing and billing coordination service.
// @host            localhost:8080
// @BasePath        /api/v1
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}

	cfg := config.Load()

	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	log.Info().Msg("connected to database")

	// User feature
	userRepo := user.NewRepository(db)
	userService := user.NewService(userRepo)
	userHandler := user.NewHandler(userService)

	// Pool registry
	poolRepo := pool.NewRepository(db)
	poolService := pool.NewService(poolRepo)
	poolHandler := pool.NewHandler(poolService)

	// Notifications
	notificationRepo := notification.NewRepository(db)
	notificationService := notification.NewService(notificationRepo)
	notificationHandler := notification.NewHandler(notificationService)

	// Join request workflow
	requestRepo := joinrequest.NewRepository(db)
	requestService := joinrequest.NewService(requestRepo, poolService, notificationService)
	requestHandler := joinrequest.NewHandler(requestService)

	// Memberships
	membershipRepo := membership.NewRepository(db)
	membershipService := membership.NewService(membershipRepo, poolService, notificationService)
	membershipHandler := membership.NewHandler(membershipService)

	// Ledger
	ledgerRepo := ledger.NewRepository(db)
	ledgerService := ledger.NewService(ledgerRepo, notificationService)
	ledgerHandler := ledger.NewHandler(ledgerService)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.IdentityMiddleware)

		r.Mount("/users", userHandler.Routes())
		r.Mount("/pools", poolHandler.Routes())
		r.Mount("/requests", requestHandler.Routes())
		r.Mount("/memberships", membershipHandler.Routes())
		r.Mount("/ledger", ledgerHandler.Routes())
		r.Mount("/notifications", notificationHandler.Routes())
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background billing sweeper
	sweeper := worker.NewSweeper(membershipService, ledgerService, cfg.SweepInterval)
	go sweeper.Start(ctx)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
