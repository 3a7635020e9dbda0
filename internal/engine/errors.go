package engine

import (
	"errors"

	"github.com/shaiso/dflow/internal/domain"
)

// Ошибки валидации каталога процессов.
var (
	// ErrEmptyCatalog — каталог не содержит процессов.
	ErrEmptyCatalog = errors.New("catalog has no processes")

	// ErrEmptyCode — процесс или параметр без кода.
	ErrEmptyCode = errors.New("empty code")

	// ErrDuplicateCode — несколько процессов с одинаковым кодом.
	ErrDuplicateCode = errors.New("duplicate code")

	// ErrInvalidConcurrency — отрицательный лимит параллельности.
	ErrInvalidConcurrency = errors.New("allowed_processes must not be negative")

	// ErrMissingRequirement — процесс требует несуществующий процесс.
	ErrMissingRequirement = errors.New("process requires unknown process")

	// ErrSelfDependency — процесс требует сам себя.
	ErrSelfDependency = errors.New("process requires itself")

	// ErrCyclicDependency — обнаружен цикл в requires.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrUnknownParameterType — неизвестный тип параметра flow.
	ErrUnknownParameterType = errors.New("unknown parameter type")

	// ErrInvalidCondition — некорректное условие depends_on.
	ErrInvalidCondition = errors.New("invalid condition")
)

// Ошибки JSON Schema.
var (
	// ErrSchemaCompile — схема не компилируется.
	ErrSchemaCompile = errors.New("schema compile failed")
)

// ValidationError — ошибка валидации с контекстом.
//
// errors.Is(err, domain.ErrValidation) всегда true.
type ValidationError struct {
	Code    string // код процесса или параметра
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку и domain.ErrValidation.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrValidation}
	}
	return []error{e.Err, domain.ErrValidation}
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(code, field, message string, err error) *ValidationError {
	return &ValidationError{
		Code:    code,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
