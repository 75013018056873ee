// Package main is the entry point for the fundlens customer profile engine.
// The engine derives investment profiles, holdings, and behavioral tags for
// every customer from an immutable transaction ledger, on a nightly schedule
// and on demand via the HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fundlens/fundlens/internal/config"
	"github.com/fundlens/fundlens/internal/database"
	"github.com/fundlens/fundlens/internal/modules/catalog"
	"github.com/fundlens/fundlens/internal/modules/customers"
	"github.com/fundlens/fundlens/internal/modules/ledger"
	"github.com/fundlens/fundlens/internal/modules/positions"
	"github.com/fundlens/fundlens/internal/modules/profile"
	"github.com/fundlens/fundlens/internal/modules/refresh"
	"github.com/fundlens/fundlens/internal/modules/tags"
	"github.com/fundlens/fundlens/internal/modules/valuation"
	"github.com/fundlens/fundlens/internal/reliability"
	"github.com/fundlens/fundlens/internal/scheduler"
	"github.com/fundlens/fundlens/internal/server"
	"github.com/fundlens/fundlens/internal/workers"
	"github.com/fundlens/fundlens/pkg/logger"
)

// Cron schedules, local server time. Valuation runs before the profile
// refresh so the sweep sees the day's prices.
const (
	valuationSchedule = "0 30 1 * * *" // daily 01:30
	refreshSchedule   = "0 30 2 * * *" // daily 02:30
	backupSchedule    = "0 0 4 * * 0"  // Sunday 04:00
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting fundlens profile engine")

	// Two-database layout: the append-only ledger and the derived store.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	profileDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "profile.db"),
		Profile: database.ProfileStandard,
		Name:    "profile",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open profile database")
	}
	defer profileDB.Close()

	for _, db := range []*database.DB{ledgerDB, profileDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to migrate database")
		}
	}

	// Repositories
	ledgerRepo := ledger.NewRepository(ledgerDB.Conn(), log)
	customerRepo := customers.NewRepository(profileDB.Conn(), log)
	catalogRepo := catalog.NewRepository(profileDB.Conn(), log)
	positionRepo := positions.NewRepository(profileDB.Conn(), log)
	profileRepo := profile.NewRepository(profileDB.Conn(), log)
	riskRepo := profile.NewRiskRepository(profileDB.Conn(), log)
	tagRepo := tags.NewRepository(profileDB.Conn(), log)

	// Services
	recomputer := positions.NewRecomputer(ledgerRepo, positionRepo, log)
	calculator := profile.NewCalculator(log)
	engine := tags.NewEngine(log)
	pool := workers.NewPool(cfg.Workers)

	orchestrator := refresh.New(refresh.Config{
		Customers:    customerRepo,
		Recomputer:   recomputer,
		MarketValues: positionRepo,
		Transactions: ledgerRepo,
		Assessments:  riskRepo,
		Instruments:  catalogRepo,
		Calculator:   calculator,
		Profiles:     profileRepo,
		Engine:       engine,
		TagStore:     tagRepo,
		Pool:         pool,
		SweepTimeout: cfg.SweepTimeout,
		Log:          log,
	})

	updater := valuation.NewUpdater(catalogRepo, positionRepo, nil, log)

	// Scheduler with job-run history in the profile database
	history := scheduler.NewHistoryRepository(profileDB.Conn())
	sched := scheduler.New(history, log)

	valuationJob := scheduler.NewValuationUpdateJob(updater, log)
	refreshJob := scheduler.NewProfileRefreshJob(orchestrator, log)

	if err := sched.AddJob(valuationSchedule, valuationJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule valuation job")
	}
	if err := sched.AddJob(refreshSchedule, refreshJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule profile refresh job")
	}

	// Cloud backups are optional; the engine runs fine without them.
	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Client(
			cfg.Backup.Endpoint,
			cfg.Backup.Region,
			cfg.Backup.AccessKey,
			cfg.Backup.SecretKey,
			cfg.Backup.Bucket,
			log,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize backup store - backups disabled")
		} else {
			snapshots := reliability.NewSnapshotService(map[string]*database.DB{
				"ledger":  ledgerDB,
				"profile": profileDB,
			}, log)
			backups := reliability.NewCloudBackupService(store, snapshots, cfg.DataDir, cfg.Backup.Prefix, log)
			backupJob := scheduler.NewBackupJob(backups, log)
			if err := sched.AddJob(backupSchedule, backupJob); err != nil {
				log.Fatal().Err(err).Msg("Failed to schedule backup job")
			}
			log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Cloud backups enabled")
		}
	} else {
		log.Debug().Msg("Backup credentials not configured - cloud backups disabled")
	}

	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:          log,
		Cfg:          cfg,
		LedgerDB:     ledgerDB,
		ProfileDB:    profileDB,
		Catalog:      catalogRepo,
		Ledger:       ledgerRepo,
		Positions:    positionRepo,
		Recomputer:   recomputer,
		Profiles:     profileRepo,
		Tags:         tagRepo,
		Orchestrator: orchestrator,
		Valuation:    updater,
		History:      history,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}
