package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pawbook/appointment-service/internal/appointment"
	"github.com/pawbook/appointment-service/internal/config"
	"github.com/pawbook/appointment-service/internal/db"
	"github.com/pawbook/appointment-service/internal/events"
	redisclient "github.com/pawbook/appointment-service/internal/redis"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "reminder-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("window", cfg.ReminderWindow).
		Msg("reminder-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	sink := appointment.EventSink(events.NewLogSink(logger))
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.KafkaBrokers, logger)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing kafka writer")
			}
		}()
		sink = events.Fanout{events.NewLogSink(logger), kafkaSink}
	}

	// Reminders only read and publish, no booking path runs here, so the
	// worker skips Redis and uses the no-op locker.
	store := appointment.NewPgStore(pgPool)
	svc := appointment.NewService(store, redisclient.NoopLocker{}, sink, logger, appointment.ServiceOptions{
		Leads: appointment.Leads{
			Standard:   cfg.StandardLeadTime,
			Reschedule: cfg.RescheduleLeadTime,
			Urgent:     cfg.UrgentLeadTime,
		},
		LateCancelWindow: cfg.LateCancelWindow,
	})

	runOnce(rootCtx, svc, cfg.ReminderWindow, cfg.WorkerInterval, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.ReminderWindow, cfg.WorkerInterval, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, window, band time.Duration, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := svc.SendReminders(runCtx, window, band)
	if err != nil {
		logger.Error().Err(err).Msg("reminder run error")
		return
	}
	logger.Info().Int("reminders", sent).Dur("took", time.Since(start)).Msg("reminder run complete")
}
