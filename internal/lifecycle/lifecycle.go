// Package lifecycle ведёт запущенные процессы до финального состояния.
//
// Manager принимает отчёты воркеров:
//   - MarkDone       — STARTED → DONE (повторный отчёт не ошибка)
//   - MarkFailed     — STARTED → FAILED
//   - RecordProgress — прогресс STARTED записи
//
// и работает с metadata job'а (GetMetadata/SetMetadata).
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/dflow/internal/catalog"
	"github.com/shaiso/dflow/internal/domain"
	"github.com/shaiso/dflow/internal/repo"
)

// Manager — менеджер жизненного цикла процессов.
type Manager struct {
	catalog *catalog.Catalog
	store   repo.Store
	sink    domain.EventSink
}

// Config — конфигурация Manager.
type Config struct {
	Catalog *catalog.Catalog
	Store   repo.Store
	Sink    domain.EventSink
}

// New создаёт новый Manager.
func New(cfg Config) *Manager {
	sink := cfg.Sink
	if sink == nil {
		sink = domain.Sinks(nil)
	}
	return &Manager{
		catalog: cfg.Catalog,
		store:   cfg.Store,
		sink:    sink,
	}
}

// MarkDone завершает STARTED запись процесса code.
//
// Если STARTED записи нет, но DONE запись уже есть — успех без изменений
// (повторный отчёт). Иначе domain.ErrEntryNotFound.
func (m *Manager) MarkDone(ctx context.Context, jobID int64, code string) (*domain.ProcessEntry, error) {
	if _, err := m.catalog.Lookup(code); err != nil {
		return nil, err
	}

	entry, err := m.store.UpdateEntry(ctx, jobID, code, domain.EntryMutation{State: domain.StateDone})
	if err == nil {
		m.sink.Emit(ctx, domain.NewEvent(domain.EventProcessDone, jobID, entry))
		return entry, nil
	}
	if !errors.Is(err, domain.ErrEntryNotFound) && !errors.Is(err, domain.ErrInvalidTransition) {
		return nil, err
	}

	job, findErr := m.store.FindJob(ctx, jobID)
	if findErr != nil {
		return nil, findErr
	}
	if running := job.RunningEntry(); running == nil || running.ProcessCode != code {
		if done := job.LatestEntry(code); done != nil && done.State == domain.StateDone {
			out := done.Clone()
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: job %d has no STARTED %s entry", domain.ErrEntryNotFound, jobID, code)
}

// MarkFailed переводит STARTED запись процесса code в FAILED.
func (m *Manager) MarkFailed(ctx context.Context, jobID int64, code, reason string) (*domain.ProcessEntry, error) {
	if _, err := m.catalog.Lookup(code); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "failed"
	}

	entry, err := m.store.UpdateEntry(ctx, jobID, code, domain.EntryMutation{
		State:  domain.StateFailed,
		Reason: reason,
	})
	if err != nil {
		return nil, notStarted(err, jobID, code)
	}
	m.sink.Emit(ctx, domain.NewEvent(domain.EventProcessFailed, jobID, entry))
	return entry, nil
}

// RecordProgress сохраняет прогресс STARTED записи.
//
// Значения сохраняются как есть; PercentDone не пересчитывается.
func (m *Manager) RecordProgress(ctx context.Context, jobID int64, code string, p domain.Progress) (*domain.ProcessEntry, error) {
	if _, err := m.catalog.Lookup(code); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	entry, err := m.store.UpdateEntry(ctx, jobID, code, domain.EntryMutation{Progress: &p})
	if err != nil {
		return nil, notStarted(err, jobID, code)
	}
	m.sink.Emit(ctx, domain.NewEvent(domain.EventProcessProgress, jobID, entry))
	return entry, nil
}

// GetMetadata возвращает значение metadata по ключу.
func (m *Manager) GetMetadata(ctx context.Context, jobID int64, key string) (domain.Value, bool, error) {
	return m.store.GetMetadata(ctx, jobID, key)
}

// SetMetadata разбирает raw (JSON) и сохраняет по ключу.
//
// Параметры flow проверяются по схеме и depends_on каталога.
func (m *Manager) SetMetadata(ctx context.Context, jobID int64, key string, raw []byte) (domain.Value, error) {
	job, err := m.store.FindJob(ctx, jobID)
	if err != nil {
		return domain.Value{}, err
	}

	v, err := m.catalog.ValidateMetadata(key, raw, job.Metadata)
	if err != nil {
		return domain.Value{}, err
	}

	if err := m.store.SetMetadata(ctx, jobID, key, v); err != nil {
		return domain.Value{}, err
	}
	return v, nil
}

// JobView — job с историей и процессами, доступными следующими.
type JobView struct {
	*domain.Job
	Next []string `json:"next"`
}

// Job возвращает представление job'а.
func (m *Manager) Job(ctx context.Context, jobID int64) (*JobView, error) {
	job, err := m.store.FindJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobView{Job: job, Next: m.catalog.Next(job)}, nil
}

// notStarted сводит ошибки перехода к ErrEntryNotFound:
// для вызывающего нет STARTED записи, которую можно изменить.
func notStarted(err error, jobID int64, code string) error {
	if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrEntryNotFound) {
		return fmt.Errorf("%w: job %d has no STARTED %s entry", domain.ErrEntryNotFound, jobID, code)
	}
	return err
}
