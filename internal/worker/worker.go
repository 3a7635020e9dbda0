package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/dflow/internal/client"
	"github.com/shaiso/dflow/internal/domain"
	"github.com/shaiso/dflow/internal/mq"
	"github.com/shaiso/dflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 5 * time.Second
	defaultPrefetch     = 5
	reportAttempts      = 3
)

// API — методы dflow API, которые использует воркер (client.Client).
type API interface {
	Catalog(ctx context.Context) (*client.Catalog, error)
	RequestProcess(ctx context.Context, code string) (*client.Admission, error)
	GetJob(ctx context.Context, id int64) (*client.Job, error)
	ProcessProgress(ctx context.Context, jobID int64, code string, p client.Progress) (*client.EntryResult, error)
	ProcessDone(ctx context.Context, jobID int64, code string) (*client.EntryResult, error)
	ProcessFail(ctx context.Context, jobID int64, code, reason string) (*client.EntryResult, error)
}

// Worker опрашивает API и выполняет выданные процессы.
//
// Worker:
//   - Запрашивает работу через process_request для каждого своего процесса
//   - Выполняет процесс executor'ом из Registry
//   - Сообщает прогресс, затем process_done или process_fail
//   - Просыпается раньше тика по событиям process.done/failed из RabbitMQ
//
// Несколько воркеров могут работать одновременно: лимиты соблюдает API.
type Worker struct {
	api      API
	registry *Registry
	conn     *mq.Connection
	consumer *mq.Consumer

	// Configuration
	processes    []string
	pollInterval time.Duration
	retryDelay   time.Duration

	// Lifecycle
	logger     *slog.Logger
	wake       chan struct{}
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	API API

	// Executor registry (опционально; если nil — используется NewRegistry())
	Registry *Registry

	// Processes — коды процессов. Пусто — все автоматические процессы каталога,
	// для которых есть executor.
	Processes []string

	// Conn — соединение RabbitMQ для пробуждений (опционально).
	Conn *mq.Connection

	PollInterval time.Duration // default: 5s

	// RetryDelay — первая задержка повтора отчёта (default: 1s).
	RetryDelay time.Duration

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Worker{
		api:          cfg.API,
		registry:     registry,
		conn:         cfg.Conn,
		processes:    append([]string(nil), cfg.Processes...),
		pollInterval: pollInterval,
		retryDelay:   retryDelay,
		logger:       logger,
		wake:         make(chan struct{}, 1),
	}
}

// Start разрешает список процессов и запускает опрос.
//
// Запускает:
//   - Consumer для processes.wakeups (если задан Conn)
//   - Polling горутину
func (w *Worker) Start(ctx context.Context) error {
	processes, err := w.resolveProcesses(ctx)
	if err != nil {
		return err
	}
	w.processes = processes

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"processes", w.processes,
		"poll_interval", w.pollInterval,
		"wakeups", w.conn != nil,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueWakeups,
			Handler:  w.handleWakeup,
			Prefetch: defaultPrefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("wakeup consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт текущий процесс.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// Processes возвращает опрашиваемые процессы.
func (w *Worker) Processes() []string {
	return append([]string(nil), w.processes...)
}

// Wake запускает внеочередной опрос. Не блокирует.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) resolveProcesses(ctx context.Context) ([]string, error) {
	if len(w.processes) > 0 {
		for _, code := range w.processes {
			if _, err := w.registry.Get(code); err != nil {
				return nil, err
			}
		}
		return w.processes, nil
	}

	cat, err := w.api.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var codes []string
	for _, code := range cat.Automatic() {
		if _, err := w.registry.Get(code); err != nil {
			w.logger.Warn("no executor for process, skipping", "process_code", code)
			continue
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil, ErrNoProcesses
	}
	return codes, nil
}

// handleWakeup обрабатывает событие из очереди processes.wakeups.
func (w *Worker) handleWakeup(_ context.Context, msg *mq.Message) error {
	ev, err := mq.EventFromMessage(msg)
	if err != nil {
		// Ack: следующий тик всё равно опросит API.
		w.logger.Warn("invalid wakeup event", "message_id", msg.ID, "error", err)
		return nil
	}

	w.logger.Debug("wakeup event", "type", ev.Type, "job_id", ev.JobID, "process_code", ev.ProcessCode)
	w.Wake()
	return nil
}

// pollLoop — цикл опроса.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте
	w.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		case <-w.wake:
			w.Poll(ctx)
		}
	}
}

// Poll выполняет один цикл опроса и возвращает число выполненных процессов.
//
// Для каждого процесса запрашивает работу, пока API её выдаёт.
func (w *Worker) Poll(ctx context.Context) int {
	n := 0
	for _, code := range w.processes {
		for ctx.Err() == nil {
			adm, err := w.api.RequestProcess(ctx, code)
			if err != nil {
				if !client.IsCode(err, client.CodeNotAvailable) && ctx.Err() == nil {
					w.logger.Error("process request failed", "process_code", code, "error", err)
				}
				break
			}
			n++
			if !w.run(ctx, code, adm.JobID) {
				// Упавший job может снова стать доступен: повтор не раньше следующего тика.
				break
			}
		}
	}
	return n
}

// run выполняет процесс и сообщает результат. false — процесс не завершился успешно.
func (w *Worker) run(ctx context.Context, code string, jobID int64) bool {
	logger := telemetry.WithProcess(telemetry.WithJobID(w.logger, jobID), code)
	logger.Info("process assigned")

	execErr := w.execute(ctx, logger, code, jobID)

	// Процесс уже STARTED в API: результат сообщаем и при остановке воркера.
	rctx := context.WithoutCancel(ctx)

	if execErr != nil {
		logger.Warn("process failed", "error", execErr)
		err := w.report(rctx, func(ctx context.Context) error {
			_, err := w.api.ProcessFail(ctx, jobID, code, execErr.Error())
			return err
		})
		if err != nil {
			logger.Error("failed to report failure", "error", err)
		}
		return false
	}

	err := w.report(rctx, func(ctx context.Context) error {
		_, err := w.api.ProcessDone(ctx, jobID, code)
		return err
	})
	if err != nil {
		logger.Error("failed to report completion", "error", err)
		return false
	}
	logger.Info("process done")
	return true
}

func (w *Worker) execute(ctx context.Context, logger *slog.Logger, code string, jobID int64) error {
	executor, err := w.registry.Get(code)
	if err != nil {
		return err
	}

	job, err := w.api.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	md, err := domain.MetadataFromMap(job.Metadata)
	if err != nil {
		return fmt.Errorf("job metadata: %w", err)
	}

	task := &Task{
		JobID:       jobID,
		ProcessCode: code,
		Metadata:    md,
		Report: func(done, total int64) {
			p := client.Progress{Total: total, Done: done}
			if total > 0 {
				p.PercentDone = float64(done) * 100 / float64(total)
			}
			if _, err := w.api.ProcessProgress(ctx, jobID, code, p); err != nil {
				logger.Warn("failed to report progress", "done", done, "total", total, "error", err)
			}
		},
	}
	return executor.Execute(ctx, task)
}

// report повторяет вызов API при сетевых ошибках.
// Ответ API с кодом ошибки окончательный и не повторяется.
func (w *Worker) report(ctx context.Context, call func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= reportAttempts; attempt++ {
		err = call(ctx)
		if err == nil {
			return nil
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Code != client.CodeInternal {
			return err
		}
		if attempt == reportAttempts {
			break
		}

		delay := calculateBackoff(attempt, w.retryDelay, 30*time.Second)
		w.logger.Debug("retrying report", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrReportFailed, err)
}

// calculateBackoff вычисляет задержку перед повтором: initial * 2^(attempt-1), не больше max.
func calculateBackoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
