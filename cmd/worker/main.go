package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/givebridge/givebridge/internal/config"
	"github.com/givebridge/givebridge/internal/logger"
	"github.com/givebridge/givebridge/internal/models"
	"github.com/givebridge/givebridge/internal/server"
	"github.com/givebridge/givebridge/internal/tasks"
	"github.com/givebridge/givebridge/internal/workers"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	log.Info().Str("version", version).Msg("Starting givebridge Asynq worker")

	// Share the server's database setup; the worker needs no router
	db, err := server.InitDatabase(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Address}

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	asynqServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			"default": 3,
			"low":     1,
		},
		Logger: &asynqLogger{log: log},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypePurgeSessions, func(ctx context.Context, t *asynq.Task) error {
		return workers.HandlePurgeSessions(ctx, t, db, log)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := workers.StartPurgeScheduler(ctx, asynqClient, cfg.Jobs.SessionPurgeSchedule, log); err != nil {
			log.Error().Err(err).Msg("Session purge scheduler failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Starting Asynq worker server...")
		if err := asynqServer.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("Asynq worker server failed")
		}
	}()

	<-sigChan
	log.Info().Msg("Received shutdown signal, shutting down gracefully...")

	cancel()
	asynqServer.Shutdown()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info().Msg("Worker shutdown complete")
}

// asynqLogger is a wrapper to make zerolog compatible with Asynq's logger interface
type asynqLogger struct {
	log zerolog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.log.Info().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.log.Fatal().Msg(fmt.Sprint(args...))
}
