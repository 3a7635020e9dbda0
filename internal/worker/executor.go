package worker

import (
	"context"
	"fmt"
	"sort"

	"github.com/shaiso/dflow/internal/domain"
)

// Executor выполняет процесс над job'ом.
//
// Реализации: CopyExecutor, MoveExecutor, RenameExecutor.
// Ошибка из Execute переводит процесс в FAILED, nil — в DONE.
type Executor interface {
	Execute(ctx context.Context, task *Task) error
}

// Task — процесс, выданный воркеру через process_request.
type Task struct {
	JobID       int64
	ProcessCode string
	Metadata    domain.Metadata

	// Report получает прогресс: done из total файлов.
	Report func(done, total int64)
}

// progress сообщает прогресс, если задан Report.
func (t *Task) progress(done, total int64) {
	if t.Report != nil {
		t.Report(done, total)
	}
}

// String возвращает значение metadata-строки или ErrMissingMetadata.
func (t *Task) String(key string) (string, error) {
	v, ok := t.Metadata[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingMetadata, key)
	}
	s, ok := v.AsString()
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrMissingMetadata, key)
	}
	return s, nil
}

// Registry — реестр executor'ов по коду процесса.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry создаёт реестр с executor'ами по умолчанию.
//
// Регистрирует: copy_files, move_files, rename_files.
func NewRegistry() *Registry {
	r := &Registry{executors: make(map[string]Executor)}
	r.Register("copy_files", &CopyExecutor{})
	r.Register("move_files", &MoveExecutor{})
	r.Register("rename_files", &RenameExecutor{})
	return r
}

// Register добавляет executor для процесса.
func (r *Registry) Register(code string, executor Executor) {
	r.executors[code] = executor
}

// Get возвращает executor для процесса.
func (r *Registry) Get(code string) (Executor, error) {
	executor, ok := r.executors[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, code)
	}
	return executor, nil
}

// Codes возвращает зарегистрированные коды.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.executors))
	for code := range r.executors {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
