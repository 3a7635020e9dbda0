// Package repo содержит хранилища job'ов и записей процессов.
//
// Store — интерфейс доступа к данным, который использует ядро
// (admission, lifecycle). Реализации:
//   - MemoryStore — всё состояние в памяти под одним мьютексом
//   - PGStore     — PostgreSQL через pgxpool
//
// Все методы возвращают копии: вызывающий никогда не видит
// частично применённое изменение.
package repo

import (
	"context"

	"github.com/shaiso/dflow/internal/domain"
)

// Store — хранилище job'ов.
type Store interface {
	// CreateJob создаёт job в состоянии PENDING.
	// Используется внешним создателем job'ов (фикстуры, тесты).
	CreateJob(ctx context.Context, md domain.Metadata) (*domain.Job, error)

	// FindJob возвращает job с историей. domain.ErrJobNotFound, если нет.
	FindJob(ctx context.Context, id int64) (*domain.Job, error)

	// JobsEligibleFor возвращает job'ы, которые могут запустить pt следующим,
	// в порядке CreatedAt, затем ID.
	JobsEligibleFor(ctx context.Context, pt domain.ProcessType) ([]domain.Job, error)

	// CountRunning возвращает количество STARTED записей процесса.
	CountRunning(ctx context.Context, code string) (int, error)

	// AppendEntry добавляет PENDING запись процесса.
	AppendEntry(ctx context.Context, jobID int64, code string) (*domain.ProcessEntry, error)

	// UpdateEntry применяет изменение к последней записи процесса code.
	// domain.ErrEntryNotFound — записи нет; domain.ErrInvalidTransition — переход недопустим.
	UpdateEntry(ctx context.Context, jobID int64, code string, m domain.EntryMutation) (*domain.ProcessEntry, error)

	// StartEntry атомарно перепроверяет job и лимит pt
	// и добавляет STARTED запись.
	// domain.ErrInvalidJobState — job занят или не подходит;
	// domain.ErrTooManyRunning — лимит достигнут.
	StartEntry(ctx context.Context, jobID int64, pt domain.ProcessType) (*domain.Job, error)

	// GetMetadata возвращает значение metadata по ключу.
	// ok == false, если ключа нет.
	GetMetadata(ctx context.Context, jobID int64, key string) (v domain.Value, ok bool, err error)

	// SetMetadata заменяет значение по ключу, не трогая остальные.
	SetMetadata(ctx context.Context, jobID int64, key string, v domain.Value) error

	// RunningCounts возвращает количество STARTED записей по кодам процессов.
	RunningCounts(ctx context.Context) (map[string]int, error)
}

// lessJob упорядочивает кандидатов: старые первыми, при равенстве — меньший ID.
func lessJob(a, b *domain.Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
