package repo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shaiso/dflow/internal/domain"
)

var (
	scanPT   = domain.ProcessType{Code: "scan_job", ManualOnly: true, Position: 1}
	renamePT = domain.ProcessType{Code: "rename_files", AllowedConcurrency: 1, Position: 2}
	copyPT   = domain.ProcessType{Code: "copy_files", AllowedConcurrency: 2, Position: 3}
)

// runStoreTests прогоняет общие проверки для любой реализации Store.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("FindJob", func(t *testing.T) { testFindJob(t, newStore(t)) })
	t.Run("StartEntry", func(t *testing.T) { testStartEntry(t, newStore(t)) })
	t.Run("StartEntryCap", func(t *testing.T) { testStartEntryCap(t, newStore(t)) })
	t.Run("StartEntryConcurrent", func(t *testing.T) { testStartEntryConcurrent(t, newStore(t)) })
	t.Run("UpdateEntry", func(t *testing.T) { testUpdateEntry(t, newStore(t)) })
	t.Run("JobsEligibleFor", func(t *testing.T) { testJobsEligibleFor(t, newStore(t)) })
	t.Run("Metadata", func(t *testing.T) { testMetadata(t, newStore(t)) })
	t.Run("AppendEntry", func(t *testing.T) { testAppendEntry(t, newStore(t)) })
}

func mustCreate(t *testing.T, s Store, md domain.Metadata) *domain.Job {
	t.Helper()
	job, err := s.CreateJob(context.Background(), md)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func testFindJob(t *testing.T, s Store) {
	ctx := context.Background()
	job := mustCreate(t, s, domain.Metadata{"title": domain.StringValue("x")})

	got, err := s.FindJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != domain.StatePending {
		t.Errorf("expected PENDING, got %s", got.State)
	}
	if len(got.History) != 0 {
		t.Errorf("expected empty history, got %d", len(got.History))
	}
	if v, _ := got.Metadata["title"].AsString(); v != "x" {
		t.Errorf("expected title x, got %v", got.Metadata["title"])
	}

	if _, err := s.FindJob(ctx, job.ID+1000); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func testStartEntry(t *testing.T, s Store) {
	ctx := context.Background()
	job := mustCreate(t, s, nil)

	started, err := s.StartEntry(ctx, job.ID, scanPT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if started.State != domain.StateStarted {
		t.Errorf("expected STARTED, got %s", started.State)
	}
	entry := started.RunningEntry()
	if entry == nil || entry.ProcessCode != "scan_job" || entry.StartedAt == nil {
		t.Fatalf("unexpected running entry: %+v", entry)
	}

	// Job уже выполняет процесс
	if _, err := s.StartEntry(ctx, job.ID, renamePT); !errors.Is(err, domain.ErrInvalidJobState) {
		t.Errorf("expected ErrInvalidJobState, got %v", err)
	}

	n, err := s.CountRunning(ctx, "scan_job")
	if err != nil || n != 1 {
		t.Errorf("expected 1 running, got %d (%v)", n, err)
	}

	counts, err := s.RunningCounts(ctx)
	if err != nil {
		t.Fatalf("running counts: %v", err)
	}
	if counts["scan_job"] != 1 {
		t.Errorf("expected scan_job count 1, got %v", counts)
	}

	if _, err := s.StartEntry(ctx, job.ID+1000, scanPT); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func testStartEntryCap(t *testing.T, s Store) {
	ctx := context.Background()
	a := mustCreate(t, s, nil)
	b := mustCreate(t, s, nil)

	if _, err := s.StartEntry(ctx, a.ID, renamePT); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.StartEntry(ctx, b.ID, renamePT); !errors.Is(err, domain.ErrTooManyRunning) {
		t.Errorf("expected ErrTooManyRunning, got %v", err)
	}

	// b не изменился
	got, _ := s.FindJob(ctx, b.ID)
	if len(got.History) != 0 || got.State != domain.StatePending {
		t.Errorf("job b should be untouched, got %s with %d entries", got.State, len(got.History))
	}
}

func testStartEntryConcurrent(t *testing.T, s Store) {
	ctx := context.Background()

	const k = 2
	jobs := make([]*domain.Job, k+3)
	for i := range jobs {
		jobs[i] = mustCreate(t, s, nil)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, busy int

	for _, job := range jobs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := s.StartEntry(ctx, id, copyPT)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrTooManyRunning):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(job.ID)
	}
	wg.Wait()

	if ok != k {
		t.Errorf("expected %d successes, got %d", k, ok)
	}
	if busy != len(jobs)-k {
		t.Errorf("expected %d ErrTooManyRunning, got %d", len(jobs)-k, busy)
	}

	n, _ := s.CountRunning(ctx, "copy_files")
	if n != k {
		t.Errorf("expected %d running, got %d", k, n)
	}
}

func testUpdateEntry(t *testing.T, s Store) {
	ctx := context.Background()
	job := mustCreate(t, s, nil)

	// Записи ещё нет
	_, err := s.UpdateEntry(ctx, job.ID, "rename_files", domain.EntryMutation{State: domain.StateDone})
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}

	if _, err := s.StartEntry(ctx, job.ID, renamePT); err != nil {
		t.Fatalf("start: %v", err)
	}

	progress := &domain.Progress{Total: 10, Done: 4, PercentDone: 40}
	entry, err := s.UpdateEntry(ctx, job.ID, "rename_files", domain.EntryMutation{Progress: progress})
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if entry.Progress == nil || entry.Progress.Done != 4 {
		t.Errorf("expected progress done 4, got %+v", entry.Progress)
	}

	entry, err = s.UpdateEntry(ctx, job.ID, "rename_files", domain.EntryMutation{State: domain.StateDone})
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if entry.State != domain.StateDone || entry.FinishedAt == nil {
		t.Errorf("expected DONE with FinishedAt, got %+v", entry)
	}

	got, _ := s.FindJob(ctx, job.ID)
	if got.State != domain.StateDone {
		t.Errorf("expected job DONE, got %s", got.State)
	}
	if got.History[0].Progress == nil || got.History[0].Progress.PercentDone != 40 {
		t.Errorf("progress should be kept, got %+v", got.History[0].Progress)
	}

	// DONE → DONE запрещён
	_, err = s.UpdateEntry(ctx, job.ID, "rename_files", domain.EntryMutation{State: domain.StateDone})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	// прогресс на DONE записи запрещён
	_, err = s.UpdateEntry(ctx, job.ID, "rename_files", domain.EntryMutation{Progress: progress})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	n, _ := s.CountRunning(ctx, "rename_files")
	if n != 0 {
		t.Errorf("expected 0 running, got %d", n)
	}
}

func testJobsEligibleFor(t *testing.T, s Store) {
	ctx := context.Background()

	ocrPT := domain.ProcessType{
		Code:      "ocr_pages",
		DependsOn: []domain.Condition{{Key: "ocr", Value: domain.BoolValue(true)}},
	}

	a := mustCreate(t, s, domain.Metadata{"ocr": domain.BoolValue(true)})
	b := mustCreate(t, s, nil)
	c := mustCreate(t, s, domain.Metadata{"ocr": domain.BoolValue(true)})

	jobs, err := s.JobsEligibleFor(ctx, scanPT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 3 || jobs[0].ID != a.ID || jobs[1].ID != b.ID || jobs[2].ID != c.ID {
		t.Errorf("expected jobs in creation order, got %v", jobIDs(jobs))
	}

	jobs, _ = s.JobsEligibleFor(ctx, ocrPT)
	if len(jobs) != 2 || jobs[0].ID != a.ID || jobs[1].ID != c.ID {
		t.Errorf("expected a and c for ocr_pages, got %v", jobIDs(jobs))
	}

	// a выполняет scan_job — не подходит ни для чего
	if _, err := s.StartEntry(ctx, a.ID, scanPT); err != nil {
		t.Fatalf("start: %v", err)
	}
	jobs, _ = s.JobsEligibleFor(ctx, renamePT)
	if len(jobs) != 2 || jobs[0].ID != b.ID {
		t.Errorf("expected b and c for rename_files, got %v", jobIDs(jobs))
	}

	// a завершил scan_job — больше не кандидат для scan_job
	if _, err := s.UpdateEntry(ctx, a.ID, "scan_job", domain.EntryMutation{State: domain.StateDone}); err != nil {
		t.Fatalf("done: %v", err)
	}
	jobs, _ = s.JobsEligibleFor(ctx, scanPT)
	for _, j := range jobs {
		if j.ID == a.ID {
			t.Error("job with DONE scan_job should not be eligible for scan_job")
		}
	}

	// requires
	after := domain.ProcessType{Code: "move_files", Requires: []string{"scan_job"}}
	jobs, _ = s.JobsEligibleFor(ctx, after)
	if len(jobs) != 1 || jobs[0].ID != a.ID {
		t.Errorf("expected only a for move_files, got %v", jobIDs(jobs))
	}
}

func testMetadata(t *testing.T, s Store) {
	ctx := context.Background()
	job := mustCreate(t, s, domain.Metadata{"other": domain.NumberValue(1)})

	v := domain.ObjectValue(map[string]domain.Value{"type": domain.StringValue("test")})
	if err := s.SetMetadata(ctx, job.ID, "0001", v); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := s.GetMetadata(ctx, job.ID, "0001")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !got.Equal(v) {
		t.Errorf("expected %s, got %s", v, got)
	}

	other, ok, _ := s.GetMetadata(ctx, job.ID, "other")
	if n, _ := other.AsNumber(); !ok || n != 1 {
		t.Errorf("unrelated key changed: %s", other)
	}

	if _, ok, err := s.GetMetadata(ctx, job.ID, "missing"); ok || err != nil {
		t.Errorf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := s.SetMetadata(ctx, job.ID+1000, "k", v); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if _, _, err := s.GetMetadata(ctx, job.ID+1000, "k"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if err := s.SetMetadata(ctx, job.ID, "", v); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func testAppendEntry(t *testing.T, s Store) {
	ctx := context.Background()
	job := mustCreate(t, s, nil)

	entry, err := s.AppendEntry(ctx, job.ID, "copy_files")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.State != domain.StatePending {
		t.Errorf("expected PENDING entry, got %s", entry.State)
	}

	entry, err = s.UpdateEntry(ctx, job.ID, "copy_files", domain.EntryMutation{State: domain.StateStarted})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if entry.StartedAt == nil {
		t.Error("StartedAt should be set")
	}

	got, _ := s.FindJob(ctx, job.ID)
	if got.State != domain.StateStarted || len(got.History) != 1 {
		t.Errorf("expected STARTED job with 1 entry, got %s with %d", got.State, len(got.History))
	}

	if _, err := s.AppendEntry(ctx, job.ID+1000, "copy_files"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func jobIDs(jobs []domain.Job) []int64 {
	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}
