package domain

import (
	"fmt"
	"time"
)

// Job — единица оцифровки, проходящая через последовательность процессов.
//
// Job создаётся внешней системой в состоянии PENDING с пустой историей.
// State не устанавливается напрямую: он пересчитывается из последней
// записи History при каждом изменении истории.
type Job struct {
	// ID — идентификатор job'а.
	ID int64 `json:"id"`

	// State — состояние последней записи истории (PENDING для пустой истории).
	State State `json:"state"`

	// Metadata — произвольные данные job'а.
	Metadata Metadata `json:"metadata"`

	// History — записи процессов в порядке создания. Только добавление.
	History []ProcessEntry `json:"history"`

	// CreatedAt — время создания; определяет позицию в очереди.
	CreatedAt time.Time `json:"created_at"`
}

// NewJob создаёт job в состоянии PENDING.
func NewJob(id int64, md Metadata, now time.Time) *Job {
	if md == nil {
		md = make(Metadata)
	}
	return &Job{
		ID:        id,
		State:     StatePending,
		Metadata:  md.Clone(),
		History:   []ProcessEntry{},
		CreatedAt: now,
	}
}

// Clone возвращает глубокую копию.
func (j *Job) Clone() *Job {
	c := *j
	c.Metadata = j.Metadata.Clone()
	c.History = make([]ProcessEntry, len(j.History))
	for i, e := range j.History {
		c.History[i] = e.Clone()
	}
	return &c
}

// RecomputeState выставляет State по последней записи истории.
func (j *Job) RecomputeState() {
	if len(j.History) == 0 {
		j.State = StatePending
		return
	}
	j.State = j.History[len(j.History)-1].State
}

// RunningEntry возвращает STARTED запись (не более одной на job).
func (j *Job) RunningEntry() *ProcessEntry {
	for i := len(j.History) - 1; i >= 0; i-- {
		if j.History[i].State == StateStarted {
			return &j.History[i]
		}
	}
	return nil
}

// LatestEntry возвращает последнюю запись для процесса.
func (j *Job) LatestEntry(code string) *ProcessEntry {
	for i := len(j.History) - 1; i >= 0; i-- {
		if j.History[i].ProcessCode == code {
			return &j.History[i]
		}
	}
	return nil
}

// HasEntry проверяет наличие записи процесса в заданном состоянии.
func (j *Job) HasEntry(code string, state State) bool {
	for i := range j.History {
		if j.History[i].ProcessCode == code && j.History[i].State == state {
			return true
		}
	}
	return false
}

// EligibleFor проверяет, может ли job следующим запустить процесс pt.
//
// Job подходит, если:
//   - у него нет STARTED записи
//   - в истории нет DONE записи для pt.Code
//   - все процессы из pt.Requires завершены (DONE)
//   - выполнены все условия pt.DependsOn на metadata
func (j *Job) EligibleFor(pt ProcessType) bool {
	if j.RunningEntry() != nil {
		return false
	}
	if j.HasEntry(pt.Code, StateDone) {
		return false
	}
	for _, req := range pt.Requires {
		if !j.HasEntry(req, StateDone) {
			return false
		}
	}
	return pt.ConditionsHold(j.Metadata)
}

// AppendEntry добавляет PENDING запись для процесса.
func (j *Job) AppendEntry(code string, now time.Time) *ProcessEntry {
	j.History = append(j.History, NewProcessEntry(code, now))
	j.RecomputeState()
	return &j.History[len(j.History)-1]
}

// Start добавляет запись для pt и переводит её в STARTED.
//
// Возвращает ErrInvalidJobState, если job уже выполняет процесс
// или не подходит для pt. Лимит параллельности здесь не проверяется.
func (j *Job) Start(pt ProcessType, now time.Time) (*ProcessEntry, error) {
	if running := j.RunningEntry(); running != nil {
		return nil, fmt.Errorf("%w: job %d is running %s", ErrInvalidJobState, j.ID, running.ProcessCode)
	}
	if !j.EligibleFor(pt) {
		return nil, fmt.Errorf("%w: job %d is not eligible for %s", ErrInvalidJobState, j.ID, pt.Code)
	}

	entry := NewProcessEntry(pt.Code, now)
	if err := entry.Apply(EntryMutation{State: StateStarted, At: now}); err != nil {
		return nil, err
	}
	j.History = append(j.History, entry)
	j.RecomputeState()
	return &j.History[len(j.History)-1], nil
}

// UpdateEntry применяет изменение к последней записи процесса code.
func (j *Job) UpdateEntry(code string, m EntryMutation) (*ProcessEntry, error) {
	entry := j.LatestEntry(code)
	if entry == nil {
		return nil, fmt.Errorf("%w: job %d has no %s entry", ErrEntryNotFound, j.ID, code)
	}
	if err := entry.Apply(m); err != nil {
		return nil, err
	}
	j.RecomputeState()
	return entry, nil
}

// SetMetadata заменяет значение по ключу, не трогая остальные ключи.
func (j *Job) SetMetadata(key string, v Value) error {
	if key == "" {
		return fmt.Errorf("%w: metadata key is empty", ErrValidation)
	}
	if !v.IsValid() {
		return fmt.Errorf("%w: metadata value for %q is empty", ErrValidation, key)
	}
	if j.Metadata == nil {
		j.Metadata = make(Metadata)
	}
	j.Metadata[key] = v.Clone()
	return nil
}
