package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/dflow/internal/domain"
)

// MemoryStore — хранилище в памяти.
//
// Один мьютекс защищает всё состояние, поэтому StartEntry
// (проверка лимита + добавление записи) сериализован.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[int64]*domain.Job
	nextID int64
	now    func() time.Time
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[int64]*domain.Job),
		nextID: 1,
		now:    time.Now,
	}
}

// CreateJob создаёт job в состоянии PENDING.
func (s *MemoryStore) CreateJob(_ context.Context, md domain.Metadata) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := domain.NewJob(s.nextID, md, s.now())
	s.jobs[job.ID] = job
	s.nextID++
	return job.Clone(), nil
}

// FindJob возвращает копию job'а.
func (s *MemoryStore) FindJob(_ context.Context, id int64) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, jobNotFound(id)
	}
	return job.Clone(), nil
}

// JobsEligibleFor возвращает job'ы, готовые к pt.
func (s *MemoryStore) JobsEligibleFor(_ context.Context, pt domain.ProcessType) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if job.EligibleFor(pt) {
			candidates = append(candidates, job)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return lessJob(candidates[i], candidates[j])
	})

	out := make([]domain.Job, len(candidates))
	for i, job := range candidates {
		out[i] = *job.Clone()
	}
	return out, nil
}

// CountRunning возвращает количество STARTED записей процесса.
func (s *MemoryStore) CountRunning(_ context.Context, code string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countRunning(code), nil
}

func (s *MemoryStore) countRunning(code string) int {
	n := 0
	for _, job := range s.jobs {
		if e := job.RunningEntry(); e != nil && e.ProcessCode == code {
			n++
		}
	}
	return n
}

// AppendEntry добавляет PENDING запись.
func (s *MemoryStore) AppendEntry(_ context.Context, jobID int64, code string) (*domain.ProcessEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, jobNotFound(jobID)
	}
	entry := job.AppendEntry(code, s.now())
	out := entry.Clone()
	return &out, nil
}

// UpdateEntry применяет изменение к последней записи процесса.
//
// Изменение применяется к копии job'а и сохраняется только при успехе.
func (s *MemoryStore) UpdateEntry(_ context.Context, jobID int64, code string, m domain.EntryMutation) (*domain.ProcessEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, jobNotFound(jobID)
	}

	if m.At.IsZero() {
		m.At = s.now()
	}

	next := job.Clone()
	entry, err := next.UpdateEntry(code, m)
	if err != nil {
		return nil, err
	}
	s.jobs[jobID] = next

	out := entry.Clone()
	return &out, nil
}

// StartEntry атомарно проверяет job и лимит и добавляет STARTED запись.
func (s *MemoryStore) StartEntry(_ context.Context, jobID int64, pt domain.ProcessType) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, jobNotFound(jobID)
	}

	next := job.Clone()

	// Job.Start проверяет состояние job'а до лимита
	if running := next.RunningEntry(); running != nil || !next.EligibleFor(pt) {
		_, err := next.Start(pt, s.now())
		return nil, err
	}

	if running := s.countRunning(pt.Code); !pt.HasCapacity(running) {
		return nil, tooManyRunning(pt, running)
	}

	if _, err := next.Start(pt, s.now()); err != nil {
		return nil, err
	}
	s.jobs[jobID] = next
	return next.Clone(), nil
}

// GetMetadata возвращает значение metadata.
func (s *MemoryStore) GetMetadata(_ context.Context, jobID int64, key string) (domain.Value, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Value{}, false, jobNotFound(jobID)
	}
	v, ok := job.Metadata[key]
	if !ok {
		return domain.Value{}, false, nil
	}
	return v.Clone(), true, nil
}

// SetMetadata заменяет значение по ключу.
func (s *MemoryStore) SetMetadata(_ context.Context, jobID int64, key string, v domain.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return jobNotFound(jobID)
	}
	return job.SetMetadata(key, v)
}

// RunningCounts возвращает количество STARTED записей по кодам.
func (s *MemoryStore) RunningCounts(_ context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, job := range s.jobs {
		if e := job.RunningEntry(); e != nil {
			counts[e.ProcessCode]++
		}
	}
	return counts, nil
}
