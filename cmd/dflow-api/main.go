// dflow API — HTTP сервер admission и lifecycle процессов.
//
// Сервер:
//   - Загружает dflow.toml (--config, DFLOW_CONFIG)
//   - Открывает хранилище (memory или PostgreSQL)
//   - Публикует события процессов в RabbitMQ, если он доступен
//   - Сверяет gauge запущенных процессов по cron
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/shaiso/dflow/internal/admission"
	"github.com/shaiso/dflow/internal/api"
	"github.com/shaiso/dflow/internal/config"
	"github.com/shaiso/dflow/internal/domain"
	"github.com/shaiso/dflow/internal/lifecycle"
	"github.com/shaiso/dflow/internal/mq"
	"github.com/shaiso/dflow/internal/repo"
	"github.com/shaiso/dflow/internal/scheduler"
	"github.com/shaiso/dflow/internal/telemetry"
)

var startTime = time.Now()

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to dflow.toml (default: $DFLOW_CONFIG or ./dflow.toml)")
	pflag.Parse()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger("dflow-api")
	logger.Info("starting dflow-api")

	cfg, path, exists, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if exists {
		logger.Info("configuration loaded", "path", path)
	} else {
		logger.Info("configuration file not found, using defaults", "path", path)
	}

	cat, err := cfg.Catalog()
	if err != nil {
		logger.Error("invalid process catalog", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := repo.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("store opened", "driver", cfg.Store.Driver)

	if n, err := cfg.SeedJobs(ctx, store); err != nil {
		logger.Error("failed to seed jobs", "error", err)
		os.Exit(1)
	} else if n > 0 {
		logger.Info("jobs seeded", "count", n)
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	sinks := domain.Sinks{metrics}

	// RabbitMQ
	mqURL := cfg.MQ.URL
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, events are not published", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		sinks = append(sinks, mq.NewEventPublisher(mq.NewPublisher(mqConn, logger), logger))
	}

	handler := api.NewHandler(api.Config{
		Admission: admission.New(admission.Config{Catalog: cat, Store: store, Sink: sinks}),
		Lifecycle: lifecycle.New(lifecycle.Config{Catalog: cat, Store: store, Sink: sinks}),
		Catalog:   cat,
		Observer:  metrics,
		APIKey:    cfg.Server.APIKey,
		Logger:    logger,
	})
	if cfg.Server.APIKey == "" {
		logger.Warn("api key check disabled")
	}

	// Сверка gauge с хранилищем
	reconciler, err := scheduler.New(scheduler.Config{
		Store:  store,
		Gauge:  metrics,
		Spec:   cfg.Metrics.Refresh,
		Logger: logger,
	})
	if err != nil {
		logger.Error("invalid metrics.refresh", "error", err)
		os.Exit(1)
	}
	if err := reconciler.Start(ctx); err != nil {
		logger.Error("failed to start reconciler", "error", err)
		os.Exit(1)
	}
	defer reconciler.Stop()

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
