package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// CountSource — источник фактического числа запущенных процессов.
// Реализуется repo.Store.
type CountSource interface {
	RunningCounts(ctx context.Context) (map[string]int, error)
}

// Gauge принимает результат сверки. Реализуется telemetry.Metrics.
type Gauge interface {
	SetRunning(counts map[string]int)
}

// Reconciler периодически сверяет gauge с хранилищем.
type Reconciler struct {
	source CountSource
	gauge  Gauge
	spec   string
	logger *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// Config — конфигурация Reconciler.
type Config struct {
	Store  CountSource
	Gauge  Gauge
	Spec   string // по умолчанию DefaultSpec
	Logger *slog.Logger
}

// New создаёт Reconciler. Ошибка — неверное расписание.
func New(cfg Config) (*Reconciler, error) {
	spec := cfg.Spec
	if spec == "" {
		spec = DefaultSpec
	}
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		source: cfg.Store,
		gauge:  cfg.Gauge,
		spec:   spec,
		logger: logger,
	}, nil
}

// Tick выполняет одну сверку.
func (r *Reconciler) Tick(ctx context.Context) error {
	counts, err := r.source.RunningCounts(ctx)
	if err != nil {
		return fmt.Errorf("running counts: %w", err)
	}
	r.gauge.SetRunning(counts)

	r.logger.Debug("running gauge reconciled", "processes", len(counts))
	return nil
}

// Start делает первую сверку сразу и запускает расписание.
// Задачи получают ctx; после его отмены очередной Tick завершится ошибкой.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return nil
	}

	if err := r.Tick(ctx); err != nil {
		r.logger.Warn("initial reconcile failed", "error", err)
	}

	c := cron.New(cron.WithParser(specParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.spec, func() {
		if err := r.Tick(ctx); err != nil {
			r.logger.Error("reconcile failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}
	c.Start()
	r.cron = c

	r.logger.Info("reconciler started", "schedule", r.spec)
	return nil
}

// Stop останавливает расписание и ждёт текущую сверку.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}
