package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Progress — прогресс выполняющегося процесса.
//
// Значения сохраняются как прислал воркер; PercentDone не пересчитывается.
type Progress struct {
	Total       int64   `json:"total"`
	Done        int64   `json:"done"`
	PercentDone float64 `json:"percent_done"`
}

// Validate проверяет форму прогресса.
func (p Progress) Validate() error {
	if p.Total < 0 || p.Done < 0 {
		return fmt.Errorf("%w: progress values must not be negative", ErrValidation)
	}
	if p.Total > 0 && p.Done > p.Total {
		return fmt.Errorf("%w: done (%d) exceeds total (%d)", ErrValidation, p.Done, p.Total)
	}
	if p.PercentDone < 0 || p.PercentDone > 100 {
		return fmt.Errorf("%w: percent_done must be within 0..100", ErrValidation)
	}
	return nil
}

// ProcessEntry — одна попытка выполнения процесса для job'а.
//
// Записи не удаляются; повторный запуск создаёт новую запись.
type ProcessEntry struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// ProcessCode — код процесса из каталога.
	ProcessCode string `json:"process_code"`

	// State — текущее состояние записи.
	State State `json:"state"`

	// StartedAt — время перехода в STARTED.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в DONE или FAILED.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Progress — последний присланный прогресс (nil, если не было).
	Progress *Progress `json:"progress,omitempty"`

	// Error — причина неудачи для FAILED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// NewProcessEntry создаёт запись в состоянии PENDING.
func NewProcessEntry(code string, now time.Time) ProcessEntry {
	return ProcessEntry{
		ID:          uuid.New(),
		ProcessCode: code,
		State:       StatePending,
		CreatedAt:   now,
	}
}

// EntryMutation — изменение записи: переход состояния и/или прогресс.
type EntryMutation struct {
	// State — целевое состояние; пустое — без перехода.
	State State

	// Progress — новый прогресс; nil — без изменения.
	Progress *Progress

	// Reason — причина для перехода в FAILED.
	Reason string

	// At — время изменения; нулевое — time.Now().
	At time.Time
}

// Apply применяет изменение к записи.
// При ошибке запись не меняется.
func (e *ProcessEntry) Apply(m EntryMutation) error {
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}

	next := *e

	if m.State != "" {
		if !e.State.CanTransitionTo(m.State) {
			return fmt.Errorf("%w: %s → %s for %s", ErrInvalidTransition, e.State, m.State, e.ProcessCode)
		}
		next.State = m.State
		switch m.State {
		case StateStarted:
			next.StartedAt = &at
		case StateDone:
			next.FinishedAt = &at
		case StateFailed:
			next.FinishedAt = &at
			next.Error = m.Reason
		}
	}

	if m.Progress != nil {
		if next.State != StateStarted {
			return fmt.Errorf("%w: progress on %s entry for %s", ErrInvalidTransition, next.State, e.ProcessCode)
		}
		if err := m.Progress.Validate(); err != nil {
			return err
		}
		p := *m.Progress
		next.Progress = &p
	}

	*e = next
	return nil
}

// Duration возвращает продолжительность выполнения.
func (e *ProcessEntry) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// Clone возвращает копию записи с собственными указателями.
func (e ProcessEntry) Clone() ProcessEntry {
	if e.StartedAt != nil {
		t := *e.StartedAt
		e.StartedAt = &t
	}
	if e.FinishedAt != nil {
		t := *e.FinishedAt
		e.FinishedAt = &t
	}
	if e.Progress != nil {
		p := *e.Progress
		e.Progress = &p
	}
	return e
}
