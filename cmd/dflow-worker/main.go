// dflow worker — выполняет файловые процессы (copy_files, move_files, rename_files).
//
// Worker:
//   - Опрашивает API через process_request
//   - Выполняет процесс над каталогами из metadata job'а
//   - Сообщает прогресс и результат
//   - Просыпается по событиям RabbitMQ, если он доступен
//
// Несколько воркеров могут работать с одним API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/shaiso/dflow/internal/client"
	"github.com/shaiso/dflow/internal/config"
	"github.com/shaiso/dflow/internal/mq"
	"github.com/shaiso/dflow/internal/telemetry"
	"github.com/shaiso/dflow/internal/worker"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to dflow.toml (default: $DFLOW_CONFIG or ./dflow.toml)")
	processes := pflag.StringSlice("process", nil, "Process codes to poll (default: all automatic processes)")
	noMQ := pflag.Bool("no-mq", false, "Do not subscribe to RabbitMQ wakeups")
	pflag.Parse()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger("dflow-worker")
	logger.Info("starting dflow-worker")

	cfg, path, _, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Debug("configuration", "path", path)

	pollInterval, err := cfg.PollInterval()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	codes := cfg.Worker.Processes
	if len(*processes) > 0 {
		codes = *processes
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RabbitMQ
	var mqConn *mq.Connection
	if !*noMQ {
		mqURL := cfg.MQ.URL
		if mqURL == "" {
			mqURL = mq.DefaultURL()
		}
		mqConn, err = mq.NewConnection(mqURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
			mqConn = nil
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
		}
	}

	w := worker.New(worker.Config{
		API:          client.New(cfg.Worker.APIURL, cfg.Server.APIKey),
		Processes:    codes,
		Conn:         mqConn,
		PollInterval: pollInterval,
		Logger:       logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "api_url", cfg.Worker.APIURL, "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	server := &http.Server{Addr: port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	w.Stop()
	logger.Info("dflow-worker stopped")
}
