package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType — тип события жизненного цикла процесса.
type EventType string

const (
	EventProcessStarted  EventType = "process.started"
	EventProcessProgress EventType = "process.progress"
	EventProcessDone     EventType = "process.done"
	EventProcessFailed   EventType = "process.failed"
)

// Event — событие об изменении записи процесса.
type Event struct {
	Type        EventType `json:"type"`
	JobID       int64     `json:"job_id"`
	ProcessCode string    `json:"process_code"`
	EntryID     uuid.UUID `json:"entry_id"`
	State       State     `json:"state"`
	Progress    *Progress `json:"progress,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// NewEvent создаёт событие по записи процесса.
func NewEvent(t EventType, jobID int64, e *ProcessEntry) Event {
	ev := Event{
		Type:        t,
		JobID:       jobID,
		ProcessCode: e.ProcessCode,
		EntryID:     e.ID,
		State:       e.State,
		Reason:      e.Error,
		At:          time.Now(),
	}
	if e.Progress != nil {
		p := *e.Progress
		ev.Progress = &p
	}
	return ev
}

// EventSink получает события после успешного изменения состояния.
//
// Emit не возвращает ошибку: событие — уведомление, а не часть транзакции.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// Sinks рассылает событие всем получателям.
type Sinks []EventSink

// Emit реализует EventSink.
func (s Sinks) Emit(ctx context.Context, ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ctx, ev)
		}
	}
}
