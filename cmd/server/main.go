// Command server runs the market insight background core: the worker
// pool, the scheduler, and the HTTP surface.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/cache"
	"github.com/aristath/insight/internal/config"
	"github.com/aristath/insight/internal/database"
	"github.com/aristath/insight/internal/modules/alerts"
	"github.com/aristath/insight/internal/modules/marketdata"
	"github.com/aristath/insight/internal/modules/sentiment"
	"github.com/aristath/insight/internal/modules/universe"
	"github.com/aristath/insight/internal/notify"
	"github.com/aristath/insight/internal/reliability"
	"github.com/aristath/insight/internal/server"
	"github.com/aristath/insight/internal/work"
	"github.com/aristath/insight/pkg/logger"

	openaiclient "github.com/aristath/insight/internal/clients/openai"
	"github.com/aristath/insight/internal/clients/yahoo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger isn't up yet.
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting insight server")

	db, err := database.New(database.Config{Path: cfg.DatabasePath})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// Repositories.
	universeRepo := universe.NewRepository(db.Conn(), log)
	marketRepo := marketdata.NewRepository(db.Conn(), log)
	alertRepo := alerts.NewRepository(db.Conn(), log)
	sentimentRepo := sentiment.NewRepository(db.Conn(), log)
	cacheRepo := cache.NewRepository(db.Conn())

	// Clients and sinks.
	feed := yahoo.NewClient(cfg.MarketFeedURL, log)

	var notifier work.Notifier
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create telegram notifier")
		}
		notifier = tg
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, alert notifications go to the log")
		notifier = notify.NewLogNotifier(log)
	}

	// Jobs.
	registry := work.NewRegistry()
	pool := work.NewPool(registry, work.PoolConfig{
		Workers:    cfg.WorkerCount,
		JobTimeout: cfg.JobTimeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
	}, log)

	work.RegisterCollectorJob(registry, work.CollectorDeps{
		Companies:    universeRepo,
		Feed:         feed,
		Store:        marketRepo,
		LookbackDays: cfg.CollectLookbackDays,
		Log:          log,
	})
	work.RegisterEvaluatorJob(registry, work.EvaluatorDeps{
		Alerts: alertRepo,
		Prices: marketRepo,
		Pool:   pool,
		Log:    log,
	})
	work.RegisterDispatcherJob(registry, work.DispatcherDeps{
		Notifier: notifier,
		Log:      log,
	})
	work.RegisterCleanupJob(registry, cache.NewCleanupJob(cacheRepo, log))

	if cfg.OpenAIAPIKey != "" {
		ai := openaiclient.NewClient(cfg.OpenAIAPIKey, log)
		work.RegisterAnalyzerJob(registry, work.AnalyzerDeps{
			Companies: universeRepo,
			AI:        ai,
			Store:     sentimentRepo,
			BatchSize: cfg.SentimentBatchSize,
			Log:       log,
		})
		work.RegisterReportJob(registry, work.ReportDeps{
			Market: marketRepo,
			AI:     ai,
			Cache:  cacheRepo,
			TopN:   cfg.ReportTopN,
			Log:    log,
		})
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, sentiment and report jobs disabled")
	}

	if cfg.BackupsEnabled() {
		r2, err := reliability.NewR2Client(context.Background(), reliability.R2Config{
			Endpoint:        cfg.R2AccountEndpoint,
			Bucket:          cfg.R2Bucket,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create r2 client")
		}
		backup := reliability.NewBackupService(db, r2, cfg.BackupDir, cfg.BackupRetentionDays, log)
		work.RegisterBackupJob(registry, backup)
	} else {
		log.Info().Msg("Cloud backups not configured, backup job disabled")
	}

	pool.Start()

	// Schedules.
	scheduler := work.NewScheduler(pool, log)
	mustAdd(log, scheduler, work.JobCollectMarketData, cfg.CollectSchedule)
	mustAdd(log, scheduler, work.JobCheckAlerts, cfg.AlertSchedule)
	mustAdd(log, scheduler, work.JobCleanupCache, cfg.CleanupSchedule)
	if registry.Has(work.JobDailyReport) {
		mustAdd(log, scheduler, work.JobDailyReport, cfg.ReportSchedule)
	}
	if registry.Has(work.JobBackup) {
		mustAdd(log, scheduler, work.JobBackup, cfg.BackupSchedule)
	}
	scheduler.Start()

	// HTTP surface.
	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		DB:         db,
		Universe:   universeRepo,
		MarketData: marketRepo,
		Alerts:     alertRepo,
		Cache:      cacheRepo,
		Pool:       pool,
		Registry:   registry,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	scheduler.Stop()
	pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}

func mustAdd(log zerolog.Logger, s *work.Scheduler, job, spec string) {
	if err := s.Add(job, spec, nil); err != nil {
		log.Fatal().Err(err).Str("job", job).Msg("Invalid schedule")
	}
}
