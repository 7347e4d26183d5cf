package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rpattn/parametric/internal/config"
	"github.com/rpattn/parametric/internal/db"
	"github.com/rpattn/parametric/internal/ingestion"
	"github.com/rpattn/parametric/internal/middleware"
	"github.com/rpattn/parametric/internal/models"
	"github.com/rpattn/parametric/internal/optimization"
	"github.com/rpattn/parametric/internal/repository"
	"github.com/rpattn/parametric/internal/sharing"
	"github.com/rpattn/parametric/internal/versioning"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Repositories
	modelRepo := repository.NewModelRepository(conn.Pool)
	grantRepo := repository.NewShareGrantRepository(conn.Pool)
	activityRepo := repository.NewActivityLogRepository(conn.Pool)

	// Services
	versionManager := versioning.NewManager(modelRepo)
	shareService := sharing.NewService(grantRepo, sharing.WithDefaultTTL(cfg.Sharing.DefaultTTL))

	var provider optimization.Provider
	if cfg.Optimizer.APIKey != "" {
		provider = optimization.NewHTTPProvider(cfg.Optimizer.Endpoint, cfg.Optimizer.APIKey, cfg.Optimizer.Model)
	} else {
		logger.Warn().Msg("no optimizer API key configured, using mock completion provider")
		provider = optimization.NewMockProvider()
	}
	orchestrator := optimization.NewOrchestrator(provider, versionManager, logger,
		optimization.WithTimeout(cfg.Optimizer.Timeout),
		optimization.WithCompletionBudget(cfg.Optimizer.MaxTokens, cfg.Optimizer.Temperature),
	)

	modelService := models.NewService(modelRepo, activityRepo, versionManager, shareService, orchestrator, logger)
	ingestionService := ingestion.NewService(modelService)

	// HTTP surface
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	logging := middleware.Logging(logger)

	modelRoutes := models.NewHTTPHandler(modelService).Routes()
	mux := http.NewServeMux()
	mux.Handle("/models", modelRoutes)
	mux.Handle("/models/", modelRoutes)
	mux.Handle("/shared/", modelRoutes)
	mux.Handle("/ingest", ingestion.NewHTTPHandler(ingestionService))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(logging(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // optimization calls block the request
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting parametric model server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}
