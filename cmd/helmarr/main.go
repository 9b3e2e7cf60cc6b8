package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/helmarr/helmarr/internal/api"
	"github.com/helmarr/helmarr/internal/config"
	"github.com/helmarr/helmarr/internal/database"
	"github.com/helmarr/helmarr/internal/logger"
	"github.com/helmarr/helmarr/internal/scheduler"
	"github.com/helmarr/helmarr/internal/startup"
	"github.com/helmarr/helmarr/internal/websocket"
)

func main() {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting Helmarr")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	hub := websocket.NewHub()
	go hub.Run()

	server, err := api.NewServer(db.Conn(), hub, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create API server")
	}

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	registerTasks(sched, server, cfg, log)
	server.SetScheduler(sched)

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil {
			log.Info().Msg("server stopped")
		}
	}()

	// An eager first sync so a fresh install routes without waiting for
	// the schedule; retried because the provider may not be reachable
	// yet at boot.
	if cfg.Sync.Enabled {
		go func() {
			err := startup.WithRetry(context.Background(), "initial watchlist sync",
				startup.DefaultRetryConfig(), func() error {
					_, err := server.SyncService().Sync(context.Background())
					return err
				}, &log.Logger)
			if err != nil {
				log.Warn().Err(err).Msg("initial watchlist sync failed, waiting for scheduled run")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("received shutdown signal")

	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("failed to stop scheduler")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}

func registerTasks(sched *scheduler.Scheduler, server *api.Server, cfg *config.Config, log *logger.Logger) {
	if cfg.Sync.Enabled {
		interval := time.Duration(cfg.Sync.IntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = 20 * time.Minute
		}
		err := sched.RegisterTask(scheduler.TaskConfig{
			ID:          "watchlist-sync",
			Name:        "Watchlist Sync",
			Description: "Pulls user watchlists and routes new entries",
			Every:       interval,
			Func: func(ctx context.Context) error {
				_, err := server.SyncService().Sync(ctx)
				return err
			},
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to register watchlist sync task")
		}
	}

	err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "quota-prune",
		Name:        "Quota Usage Prune",
		Description: "Removes quota usage rows older than any quota window",
		Cron:        "30 3 * * *",
		Func: func(ctx context.Context) error {
			_, err := server.QuotaService().PruneUsage(ctx)
			return err
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to register quota prune task")
	}
}
