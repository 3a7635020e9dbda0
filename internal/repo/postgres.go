package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/dflow/internal/domain"
)

// PGStore — хранилище в PostgreSQL.
//
// Изменения истории выполняются в транзакции с блокировкой строки job'а
// (SELECT ... FOR UPDATE). StartEntry дополнительно берёт
// pg_advisory_xact_lock по коду процесса, чтобы подсчёт STARTED записей
// и вставка новой были одной сериализованной операцией.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore создаёт новый PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// querier — общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CreateJob создаёт job.
func (s *PGStore) CreateJob(ctx context.Context, md domain.Metadata) (*domain.Job, error) {
	job := domain.NewJob(0, md, time.Now().UTC())

	mdJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO jobs (state, metadata, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := s.pool.QueryRow(ctx, query, job.State, mdJSON, job.CreatedAt).Scan(&job.ID); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// FindJob возвращает job с историей.
func (s *PGStore) FindJob(ctx context.Context, id int64) (*domain.Job, error) {
	return s.loadJob(ctx, s.pool, id, false)
}

// JobsEligibleFor возвращает job'ы, готовые к pt.
//
// SQL отсекает job'ы с STARTED записью, с DONE записью pt и
// не совпадающие по depends_on; requires проверяется по загруженной истории.
func (s *PGStore) JobsEligibleFor(ctx context.Context, pt domain.ProcessType) ([]domain.Job, error) {
	conds := make(map[string]domain.Value, len(pt.DependsOn))
	for _, c := range pt.DependsOn {
		conds[c.Key] = c.Value
	}
	condJSON, err := json.Marshal(conds)
	if err != nil {
		return nil, fmt.Errorf("marshal conditions: %w", err)
	}

	query := `
		SELECT j.id, j.state, j.metadata, j.created_at
		FROM jobs j
		WHERE NOT EXISTS (
		        SELECT 1 FROM process_entries e
		        WHERE e.job_id = j.id AND e.state = 'STARTED')
		  AND NOT EXISTS (
		        SELECT 1 FROM process_entries e
		        WHERE e.job_id = j.id AND e.process_code = $1 AND e.state = 'DONE')
		  AND j.metadata @> $2::jsonb
		ORDER BY j.created_at ASC, j.id ASC
	`
	rows, err := s.pool.Query(ctx, query, pt.Code, condJSON)
	if err != nil {
		return nil, fmt.Errorf("list eligible jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadHistories(ctx, s.pool, jobs); err != nil {
		return nil, err
	}

	out := make([]domain.Job, 0, len(jobs))
	for _, job := range jobs {
		if job.EligibleFor(pt) {
			out = append(out, *job)
		}
	}
	return out, nil
}

// CountRunning возвращает количество STARTED записей процесса.
func (s *PGStore) CountRunning(ctx context.Context, code string) (int, error) {
	return countRunning(ctx, s.pool, code)
}

func countRunning(ctx context.Context, q querier, code string) (int, error) {
	var n int
	query := `SELECT count(*) FROM process_entries WHERE process_code = $1 AND state = 'STARTED'`
	if err := q.QueryRow(ctx, query, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("count running: %w", err)
	}
	return n, nil
}

// AppendEntry добавляет PENDING запись.
func (s *PGStore) AppendEntry(ctx context.Context, jobID int64, code string) (*domain.ProcessEntry, error) {
	var out domain.ProcessEntry
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		job, err := s.loadJob(ctx, tx, jobID, true)
		if err != nil {
			return err
		}
		entry := job.AppendEntry(code, time.Now().UTC())
		if err := insertEntry(ctx, tx, job.ID, entry); err != nil {
			return err
		}
		out = entry.Clone()
		return updateJobState(ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateEntry применяет изменение к последней записи процесса.
func (s *PGStore) UpdateEntry(ctx context.Context, jobID int64, code string, m domain.EntryMutation) (*domain.ProcessEntry, error) {
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}

	var out domain.ProcessEntry
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		job, err := s.loadJob(ctx, tx, jobID, true)
		if err != nil {
			return err
		}
		entry, err := job.UpdateEntry(code, m)
		if err != nil {
			return err
		}
		if err := updateEntry(ctx, tx, entry); err != nil {
			return err
		}
		out = entry.Clone()
		return updateJobState(ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// StartEntry атомарно проверяет job и лимит и добавляет STARTED запись.
func (s *PGStore) StartEntry(ctx context.Context, jobID int64, pt domain.ProcessType) (*domain.Job, error) {
	var out *domain.Job
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, pt.Code); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		job, err := s.loadJob(ctx, tx, jobID, true)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if job.RunningEntry() != nil || !job.EligibleFor(pt) {
			_, err := job.Start(pt, now)
			return err
		}

		running, err := countRunning(ctx, tx, pt.Code)
		if err != nil {
			return err
		}
		if !pt.HasCapacity(running) {
			return tooManyRunning(pt, running)
		}

		entry, err := job.Start(pt, now)
		if err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, job.ID, entry); err != nil {
			return err
		}
		if err := updateJobState(ctx, tx, job); err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetMetadata возвращает значение metadata по ключу.
func (s *PGStore) GetMetadata(ctx context.Context, jobID int64, key string) (domain.Value, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT metadata -> $2::text FROM jobs WHERE id = $1`, jobID, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Value{}, false, jobNotFound(jobID)
	}
	if err != nil {
		return domain.Value{}, false, fmt.Errorf("get metadata: %w", err)
	}
	if raw == nil {
		return domain.Value{}, false, nil
	}

	var v domain.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.Value{}, false, fmt.Errorf("%w: metadata %q: %v", ErrInvalidState, key, err)
	}
	return v, true, nil
}

// SetMetadata заменяет значение по ключу (jsonb ||).
func (s *PGStore) SetMetadata(ctx context.Context, jobID int64, key string, v domain.Value) error {
	if key == "" {
		return fmt.Errorf("%w: metadata key is empty", domain.ErrValidation)
	}
	if !v.IsValid() {
		return fmt.Errorf("%w: metadata value for %q is empty", domain.ErrValidation, key)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		UPDATE jobs
		SET metadata = metadata || jsonb_build_object($2::text, $3::jsonb)
		WHERE id = $1
	`
	result, err := s.pool.Exec(ctx, query, jobID, key, raw)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	if result.RowsAffected() == 0 {
		return jobNotFound(jobID)
	}
	return nil
}

// RunningCounts возвращает количество STARTED записей по кодам.
func (s *PGStore) RunningCounts(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT process_code, count(*)
		FROM process_entries
		WHERE state = 'STARTED'
		GROUP BY process_code
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("running counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan running count: %w", err)
		}
		counts[code] = n
	}
	return counts, rows.Err()
}

// --- Helpers ---

// inTx выполняет fn в транзакции. Ошибка fn откатывает транзакцию.
func (s *PGStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// loadJob загружает job с историей; forUpdate блокирует строку job'а.
func (s *PGStore) loadJob(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Job, error) {
	query := `SELECT id, state, metadata, created_at FROM jobs WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	job, err := scanJob(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jobNotFound(id)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadHistories(ctx, q, []*domain.Job{job}); err != nil {
		return nil, err
	}
	return job, nil
}

// loadHistories загружает истории одним запросом.
func (s *PGStore) loadHistories(ctx context.Context, q querier, jobs []*domain.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Job, len(jobs))
	ids := make([]int64, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
		byID[job.ID] = job
	}

	query := `
		SELECT job_id, id, process_code, state, started_at, finished_at,
		       progress, error, created_at
		FROM process_entries
		WHERE job_id = ANY($1)
		ORDER BY job_id, seq
	`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		jobID, entry, err := scanEntryFromRows(rows)
		if err != nil {
			return err
		}
		if job, ok := byID[jobID]; ok {
			job.History = append(job.History, *entry)
		}
	}
	return rows.Err()
}

// scanJob сканирует одну строку в Job (без истории).
func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var mdJSON []byte

	if err := row.Scan(&job.ID, &job.State, &mdJSON, &job.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return finishJob(&job, mdJSON)
}

// scanJobFromRows сканирует строку из rows в Job.
func scanJobFromRows(rows pgx.Rows) (*domain.Job, error) {
	var job domain.Job
	var mdJSON []byte

	if err := rows.Scan(&job.ID, &job.State, &mdJSON, &job.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return finishJob(&job, mdJSON)
}

func finishJob(job *domain.Job, mdJSON []byte) (*domain.Job, error) {
	job.Metadata = make(domain.Metadata)
	if mdJSON != nil {
		if err := json.Unmarshal(mdJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("%w: job %d metadata: %v", ErrInvalidState, job.ID, err)
		}
	}
	job.History = []domain.ProcessEntry{}
	return job, nil
}

// scanEntryFromRows сканирует строку process_entries.
func scanEntryFromRows(rows pgx.Rows) (int64, *domain.ProcessEntry, error) {
	var jobID int64
	var entry domain.ProcessEntry
	var state string
	var progressJSON []byte
	var entryError *string

	err := rows.Scan(
		&jobID,
		&entry.ID,
		&entry.ProcessCode,
		&state,
		&entry.StartedAt,
		&entry.FinishedAt,
		&progressJSON,
		&entryError,
		&entry.CreatedAt,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("scan entry: %w", err)
	}
	if entry.State, err = domain.ParseState(state); err != nil {
		return 0, nil, fmt.Errorf("%w: entry %s: %v", ErrInvalidState, entry.ID, err)
	}

	if progressJSON != nil {
		var p domain.Progress
		if err := json.Unmarshal(progressJSON, &p); err != nil {
			return 0, nil, fmt.Errorf("%w: entry %s progress: %v", ErrInvalidState, entry.ID, err)
		}
		entry.Progress = &p
	}
	if entryError != nil {
		entry.Error = *entryError
	}
	return jobID, &entry, nil
}

func insertEntry(ctx context.Context, q querier, jobID int64, e *domain.ProcessEntry) error {
	progressJSON, err := marshalProgress(e.Progress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO process_entries
		    (id, job_id, process_code, state, started_at, finished_at, progress, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = q.Exec(ctx, query,
		e.ID,
		jobID,
		e.ProcessCode,
		e.State,
		e.StartedAt,
		e.FinishedAt,
		progressJSON,
		nullString(e.Error),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func updateEntry(ctx context.Context, q querier, e *domain.ProcessEntry) error {
	progressJSON, err := marshalProgress(e.Progress)
	if err != nil {
		return err
	}

	query := `
		UPDATE process_entries
		SET state = $2, started_at = $3, finished_at = $4, progress = $5, error = $6
		WHERE id = $1
	`
	result, err := q.Exec(ctx, query,
		e.ID,
		e.State,
		e.StartedAt,
		e.FinishedAt,
		progressJSON,
		nullString(e.Error),
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: entry %s", domain.ErrEntryNotFound, e.ID)
	}
	return nil
}

func updateJobState(ctx context.Context, q querier, job *domain.Job) error {
	if _, err := q.Exec(ctx, `UPDATE jobs SET state = $2 WHERE id = $1`, job.ID, job.State); err != nil {
		return fmt.Errorf("update job state: %w", err)
	}
	return nil
}

func marshalProgress(p *domain.Progress) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal progress: %w", err)
	}
	return b, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
