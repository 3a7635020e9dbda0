// Package admission решает, какой job запускает процесс следующим.
//
// Controller — единственная точка входа для запуска процессов:
//   - RequestProcess  — воркер просит любой подходящий job
//   - InitiateProcess — оператор запускает процесс на конкретном job'е
//
// Лимит параллельности проверяется дважды: быстрым чтением CountRunning
// и атомарной перепроверкой в Store.StartEntry. Потерянная гонка
// возвращается как ErrTooManyRunning без повтора: воркер опросит позже.
//
// Controller не логирует и не повторяет операции.
package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/dflow/internal/catalog"
	"github.com/shaiso/dflow/internal/domain"
	"github.com/shaiso/dflow/internal/repo"
)

// Controller — контроллер запуска процессов.
type Controller struct {
	catalog *catalog.Catalog
	store   repo.Store
	sink    domain.EventSink
}

// Config — конфигурация Controller.
type Config struct {
	Catalog *catalog.Catalog
	Store   repo.Store

	// Sink получает process.started после успешного запуска (опционально).
	Sink domain.EventSink
}

// New создаёт новый Controller.
func New(cfg Config) *Controller {
	sink := cfg.Sink
	if sink == nil {
		sink = domain.Sinks(nil)
	}
	return &Controller{
		catalog: cfg.Catalog,
		store:   cfg.Store,
		sink:    sink,
	}
}

// RequestProcess запускает процесс code на самом старом подходящем job'е.
//
// Ошибки:
//   - domain.ErrUnknownProcess — кода нет в каталоге
//   - domain.ErrTooManyRunning — лимит достигнут (в т.ч. при перепроверке)
//   - domain.ErrNoJobAvailable — нет подходящих job'ов
func (c *Controller) RequestProcess(ctx context.Context, code string) (*domain.Job, error) {
	pt, err := c.catalog.Lookup(code)
	if err != nil {
		return nil, err
	}

	if err := c.checkCapacity(ctx, pt); err != nil {
		return nil, err
	}

	candidates, err := c.store.JobsEligibleFor(ctx, pt)
	if err != nil {
		return nil, fmt.Errorf("list eligible jobs: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoJobAvailable, code)
	}

	for i := range candidates {
		job, err := c.store.StartEntry(ctx, candidates[i].ID, pt)
		switch {
		case err == nil:
			c.emitStarted(ctx, job)
			return job, nil
		case errors.Is(err, domain.ErrInvalidJobState), errors.Is(err, domain.ErrJobNotFound):
			// кандидата забрал другой запрос — пробуем следующего
			continue
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrNoJobAvailable, code)
}

// InitiateProcess запускает процесс code на job'е jobID.
//
// Ошибки проверяются в порядке: ErrUnknownProcess, ErrJobNotFound,
// ErrInvalidJobState, ErrTooManyRunning.
func (c *Controller) InitiateProcess(ctx context.Context, jobID int64, code string) (*domain.Job, error) {
	pt, err := c.catalog.Lookup(code)
	if err != nil {
		return nil, err
	}

	job, err := c.store.FindJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if running := job.RunningEntry(); running != nil {
		return nil, fmt.Errorf("%w: job %d is running %s", domain.ErrInvalidJobState, jobID, running.ProcessCode)
	}
	if !job.EligibleFor(pt) {
		return nil, fmt.Errorf("%w: job %d is not eligible for %s", domain.ErrInvalidJobState, jobID, code)
	}

	if err := c.checkCapacity(ctx, pt); err != nil {
		return nil, err
	}

	started, err := c.store.StartEntry(ctx, jobID, pt)
	if err != nil {
		return nil, err
	}
	c.emitStarted(ctx, started)
	return started, nil
}

// checkCapacity — быстрая проверка лимита до выбора кандидата.
func (c *Controller) checkCapacity(ctx context.Context, pt domain.ProcessType) error {
	if pt.Unlimited() {
		return nil
	}
	running, err := c.store.CountRunning(ctx, pt.Code)
	if err != nil {
		return fmt.Errorf("count running: %w", err)
	}
	if !pt.HasCapacity(running) {
		return fmt.Errorf("%w: %s has %d of %d", domain.ErrTooManyRunning, pt.Code, running, pt.AllowedConcurrency)
	}
	return nil
}

func (c *Controller) emitStarted(ctx context.Context, job *domain.Job) {
	if entry := job.RunningEntry(); entry != nil {
		c.sink.Emit(ctx, domain.NewEvent(domain.EventProcessStarted, job.ID, entry))
	}
}
