package domain

import "fmt"

// State — состояние записи процесса (ProcessEntry) и производное состояние job.
//
// Жизненный цикл записи:
//
//	PENDING → STARTED → DONE
//	                  ↘ FAILED
//
// Из DONE и FAILED переходов нет.
type State string

const (
	// StatePending — запись создана, процесс ещё не запущен.
	StatePending State = "PENDING"

	// StateStarted — процесс выполняется воркером.
	StateStarted State = "STARTED"

	// StateDone — процесс успешно завершён.
	StateDone State = "DONE"

	// StateFailed — процесс завершился с ошибкой.
	StateFailed State = "FAILED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода s → next.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StatePending:
		return next == StateStarted
	case StateStarted:
		return next == StateDone || next == StateFailed
	default:
		return false
	}
}

// String возвращает строковое представление State.
func (s State) String() string {
	return string(s)
}

// ParseState парсит строку в State.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StatePending, StateStarted, StateDone, StateFailed:
		return State(s), nil
	default:
		return "", fmt.Errorf("%w: unknown state %q", ErrValidation, s)
	}
}
