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

	"github.com/pawbook/appointment-service/internal/api"
	"github.com/pawbook/appointment-service/internal/appointment"
	"github.com/pawbook/appointment-service/internal/audit"
	"github.com/pawbook/appointment-service/internal/config"
	"github.com/pawbook/appointment-service/internal/db"
	"github.com/pawbook/appointment-service/internal/events"
	"github.com/pawbook/appointment-service/internal/overlay"
	redisclient "github.com/pawbook/appointment-service/internal/redis"
)

const version = "0.3.0"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

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

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	sink := appointment.EventSink(events.NewLogSink(logger))
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.KafkaBrokers, logger)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing kafka writer")
			}
		}()
		sink = events.Fanout{events.NewLogSink(logger), kafkaSink}
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("kafka event sink enabled")
	}

	store := appointment.NewPgStore(pgPool)
	locker := redisclient.NewRedisClinicianLocker(rdb, cfg.LockTTL)
	svc := appointment.NewService(store, locker, sink, logger, appointment.ServiceOptions{
		Leads: appointment.Leads{
			Standard:   cfg.StandardLeadTime,
			Reschedule: cfg.RescheduleLeadTime,
			Urgent:     cfg.UrgentLeadTime,
		},
		LateCancelWindow: cfg.LateCancelWindow,
	})

	// Cache layer is shared across requests; authorization is composed per
	// request inside the api package.
	cached := overlay.Compose(svc, overlay.Options{
		CacheBackend: overlay.NewRedisBackend(rdb, logger),
		CacheTTL:     cfg.CacheTTL,
		Logger:       logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Base:     cached,
		Resolver: store,
		Auditor:  audit.NewPgRecorder(pgPool, logger),
		PgPool:   pgPool,
		Redis:    rdb,
		Logger:   logger,
		Env:      cfg.Env,
		Version:  version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	case <-rootCtx.Done():
		logger.Info().Msg("shutting down api-server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}
