package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/salon-scheduling/internal/api"
	"github.com/hackgods/salon-scheduling/internal/config"
	"github.com/hackgods/salon-scheduling/internal/db"
	"github.com/hackgods/salon-scheduling/internal/logging"
	"github.com/hackgods/salon-scheduling/internal/metrics"
	"github.com/hackgods/salon-scheduling/internal/notify"
	redisclient "github.com/hackgods/salon-scheduling/internal/redis"
	"github.com/hackgods/salon-scheduling/internal/schedule"
	"github.com/hackgods/salon-scheduling/internal/worker"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("api-server", "info").Error("config load error", "err", err)
		os.Exit(1)
	}

	logger := logging.NewLogger("api-server", cfg.LogLevel)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []schedule.Option{
		schedule.WithLogger(logger),
		schedule.WithHoldTTL(cfg.HoldTTL),
		schedule.WithLocation(cfg.Location),
	}
	var checks []api.Check

	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err == nil {
			err = db.EnsureSchema(pgCtx, pgPool)
		}
		cancelPg()
		if err != nil {
			logger.Error("postgres connection error", "err", err)
			os.Exit(1)
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		opts = append(opts, schedule.WithStore(schedule.NewPgStore(pgPool)))
		checks = append(checks, api.Check{Name: "postgres", Critical: true, Ping: pgPool.Ping})
	} else {
		logger.Warn("POSTGRES_DSN not set, appointments are kept in memory only")
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Error("redis connection error", "err", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("error closing redis", "err", err)
			}
		}()
		logger.Info("connected to Redis", "addr", cfg.RedisAddr)

		opts = append(opts, schedule.WithLocker(redisclient.NewRedisResourceLocker(rdb, cfg.LockTTL, cfg.LockWait)))
		checks = append(checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	notifiers := notify.Fanout{notify.NewLogNotifier(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer func() {
			if err := kn.Close(); err != nil {
				logger.Error("error closing kafka writer", "err", err)
			}
		}()
		notifiers = append(notifiers, kn)
		logger.Info("publishing appointment events to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	opts = append(opts, schedule.WithNotifier(notifiers))

	var (
		m              *metrics.Metrics
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		opts = append(opts, schedule.WithRecorder(m))
	}

	engine := schedule.NewEngine(opts...)

	restored, err := engine.Restore(rootCtx)
	if err != nil {
		logger.Error("restore pending holds failed", "err", err)
		os.Exit(1)
	}
	logger.Info("pending holds restored", "timelines", restored)

	sweeper := worker.NewSweeper(engine, notifiers, logger, cfg.SweepInterval)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(rootCtx)
	}()

	routerCfg := api.RouterConfig{
		Scheduler:      engine,
		Logger:         logger,
		Window:         cfg.BusinessHours(),
		Location:       cfg.Location,
		Checks:         checks,
		MetricsHandler: metricsHandler,
		Env:            cfg.Env,
		Version:        version,
	}
	if m != nil {
		routerCfg.Observer = m
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server error", "err", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	<-sweepDone

	logger.Info("api-server stopped")
}
