// Package main is the entry point for the folio allocation service.
// It serves portfolio optimization over HTTP: price history and holdings
// live in SQLite, return/covariance estimates are built on demand, and the
// mixed-integer model is solved by an external solver service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/modules/marketdata"
	"github.com/aristath/folio/internal/modules/optimization"
	"github.com/aristath/folio/internal/modules/portfolio"
	"github.com/aristath/folio/internal/modules/reports"
	"github.com/aristath/folio/internal/modules/statistics"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/aristath/folio/internal/server"
	"github.com/aristath/folio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet.
		println("failed to load configuration:", err.Error())
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Str("solver_url", cfg.SolverServiceURL).
		Msg("Starting folio")

	// Databases: durable history and holdings, fast-profile cache for
	// estimates and run history.
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	// Market data
	historyRepo := marketdata.NewHistoryRepository(historyDB.Conn(), log)
	if err := historyRepo.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price history schema")
	}

	// Statistics
	statsCache := statistics.NewCache(cacheDB.Conn(), log)
	if err := statsCache.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize statistics cache schema")
	}
	statsService := statistics.NewService(historyRepo, statistics.NewBuilder(log), statsCache, log)

	// Portfolio
	holdingsRepo := portfolio.NewRepository(portfolioDB.Conn(), log)
	if err := holdingsRepo.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize holdings schema")
	}
	portfolioService := portfolio.NewService(holdingsRepo, log)

	// Reports
	runsRepo := reports.NewRepository(cacheDB.Conn(), log)
	if err := runsRepo.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize runs schema")
	}

	var exporter *reports.S3Exporter
	if cfg.S3Bucket != "" {
		exporter, err = reports.NewS3Exporter(context.Background(), cfg.S3Bucket, cfg.S3Prefix, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 exporter")
		}
	}

	// Optimization: each model gets a fresh solver session.
	solverOpts := optimization.SolverOptions{
		TimeLimit: cfg.SolverTimeLimit,
		MIPGap:    cfg.SolverMIPGap,
	}
	solverFactory := func() optimization.Solver {
		return optimization.NewRemoteSolver(cfg.SolverServiceURL, solverOpts, log)
	}
	optimizerService := optimization.NewService(
		statsService,
		portfolioService,
		solverFactory,
		cfg.ViolationTolerance,
		cfg.LookbackDays,
		log,
	)
	optimizerService.SetRecorder(reports.NewRecorder(runsRepo, log))

	// HTTP server
	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Health:  server.NewHealthHandlers([]*database.DB{historyDB, portfolioDB, cacheDB}, log),
		Modules: []server.RouteRegistrar{
			optimization.NewHandler(optimizerService, log),
			portfolio.NewHandler(portfolioService, log),
			statistics.NewHandler(statsService, cfg.LookbackDays, log),
			reports.NewHandler(runsRepo, exporter, log),
		},
	})

	// Background statistics refresh
	sched := scheduler.New(log)
	refreshJob := scheduler.NewStatisticsRefreshJob(historyRepo, statsService, cfg.LookbackDays, log)
	if err := sched.AddJob(cfg.StatisticsSchedule, refreshJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule statistics refresh")
	}
	sched.Start()
	defer sched.Stop()

	// Optional live quote ingestion
	if cfg.QuoteFeedURL != "" {
		tickers, err := historyRepo.ListTickers()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list tickers for quote feed")
		}
		feed := marketdata.NewQuoteFeed(cfg.QuoteFeedURL, tickers, historyRepo, log)
		if err := feed.Start(); err != nil {
			log.Warn().Err(err).Msg("Quote feed did not start, continuing without live quotes")
		}
		defer feed.Stop()
	}

	// Serve until interrupted.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}

	log.Info().Msg("Stopped")
}
