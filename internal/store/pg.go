package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is the Postgres-backed Store.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG creates a Postgres store over an open pool.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

const jobColumns = `id, queue, user_id, status, current_phase, raw_files, parsed_data, profile,
	error_message, created_at, updated_at, started_at, completed_at`

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job                           Job
		rawFiles, parsedData, profile []byte
	)
	err := row.Scan(
		&job.ID, &job.Queue, &job.UserID, &job.Status, &job.CurrentPhase,
		&rawFiles, &parsedData, &profile,
		&job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(rawFiles) > 0 {
		if err := json.Unmarshal(rawFiles, &job.RawFiles); err != nil {
			return nil, fmt.Errorf("failed to decode raw_files: %w", err)
		}
	}
	if len(parsedData) > 0 {
		if err := json.Unmarshal(parsedData, &job.ParsedData); err != nil {
			return nil, fmt.Errorf("failed to decode parsed_data: %w", err)
		}
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &job.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}
	return &job, nil
}

// CreateJob inserts a new job. Missing ID/status/timestamps are filled in.
func (s *PG) CreateJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	rawFiles, err := jsonOrEmpty(job.RawFiles)
	if err != nil {
		return err
	}
	parsedData, err := jsonOrEmpty(job.ParsedData)
	if err != nil {
		return err
	}
	profile, err := jsonOrEmpty(job.Profile)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, queue, user_id, status, current_phase, raw_files, parsed_data, profile, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', $5, $6, $7, '', $8, $8)`,
		job.ID, job.Queue, job.UserID, job.Status, rawFiles, parsedData, profile, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob returns a job by ID.
func (s *PG) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs, newest first, optionally filtered by queue.
func (s *PG) ListJobs(ctx context.Context, queue string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows pgx.Rows
		err  error
	)
	if queue == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE queue = $1 ORDER BY created_at DESC LIMIT $2`, queue, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Claim atomically claims the oldest queued job on the queue.
//
// The inner SELECT takes a row-level exclusive lock with SKIP LOCKED so
// concurrent claimers neither block on nor double-claim the same row; the
// wrapping UPDATE makes the queued->running transition atomic with the
// read. Returns (nil, nil) when the queue is empty.
func (s *PG) Claim(ctx context.Context, queue string) (*Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `
		UPDATE jobs SET
			status = 'running',
			started_at = COALESCE(started_at, now()),
			updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = $1 AND status = 'queued'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns, queue))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// SaveRawFile writes one phase's raw output into raw_files.
func (s *PG) SaveRawFile(ctx context.Context, jobID, phase, content string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			raw_files = jsonb_set(raw_files, ARRAY[$2], to_jsonb($3::text), true),
			updated_at = now()
		WHERE id = $1`,
		jobID, phase, content)
	if err != nil {
		return fmt.Errorf("failed to save raw file %s: %w", phase, err)
	}
	return nil
}

// SaveParsedData merges fields into parsed_data.
func (s *PG) SaveParsedData(ctx context.Context, jobID string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal parsed data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE jobs SET
			parsed_data = parsed_data || $2::jsonb,
			updated_at = now()
		WHERE id = $1`,
		jobID, data)
	if err != nil {
		return fmt.Errorf("failed to save parsed data: %w", err)
	}
	return nil
}

// SetCurrentPhase records the phase in progress for observers.
func (s *PG) SetCurrentPhase(ctx context.Context, jobID, phase string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET current_phase = $2, updated_at = now() WHERE id = $1`,
		jobID, phase)
	if err != nil {
		return fmt.Errorf("failed to set current phase: %w", err)
	}
	return nil
}

// SetStatus records a status transition.
func (s *PG) SetStatus(ctx context.Context, jobID string, status Status, errMsg string) error {
	if status != StatusError {
		errMsg = ""
	}

	var completedAt *time.Time
	switch status {
	case StatusComplete, StatusPartial, StatusError:
		now := time.Now().UTC()
		completedAt = &now
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = $2,
			error_message = $3,
			completed_at = $4,
			updated_at = now()
		WHERE id = $1`,
		jobID, status, errMsg, completedAt)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

// RetryJob transitions an errored job back to queued, keeping raw_files
// intact so completed phases are skipped on re-entry.
func (s *PG) RetryJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = 'queued',
			error_message = '',
			completed_at = NULL,
			updated_at = now()
		WHERE id = $1 AND status = 'error'`,
		jobID)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not in error state", jobID)
	}
	return nil
}

// ListSpecialists returns the job's specialists, oldest first.
func (s *PG) ListSpecialists(ctx context.Context, jobID string) ([]Specialist, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, name, stance, persona, created_at
		FROM specialists WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list specialists: %w", err)
	}
	defer rows.Close()

	var out []Specialist
	for rows.Next() {
		var sp Specialist
		if err := rows.Scan(&sp.ID, &sp.JobID, &sp.Name, &sp.Stance, &sp.Persona, &sp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// AddSpecialist inserts a specialist. Duplicate names for the same job
// are ignored; a prior partial run may have written some already.
func (s *PG) AddSpecialist(ctx context.Context, sp *Specialist) error {
	if sp.ID == "" {
		sp.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO specialists (id, job_id, name, stance, persona)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, name) DO NOTHING`,
		sp.ID, sp.JobID, sp.Name, sp.Stance, sp.Persona)
	if err != nil {
		return fmt.Errorf("failed to add specialist: %w", err)
	}
	return nil
}

// AddOverflow persists one overflow entry.
func (s *PG) AddOverflow(ctx context.Context, entry *OverflowEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO overflow_entries (id, job_id, pass, label, content)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.JobID, entry.Pass, entry.Label, entry.Content)
	if err != nil {
		return fmt.Errorf("failed to add overflow entry: %w", err)
	}
	return nil
}

// ListOverflow returns the job's overflow entries, oldest first.
func (s *PG) ListOverflow(ctx context.Context, jobID string) ([]OverflowEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, pass, label, content, created_at
		FROM overflow_entries WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overflow entries: %w", err)
	}
	defer rows.Close()

	var out []OverflowEntry
	for rows.Next() {
		var e OverflowEntry
		if err := rows.Scan(&e.ID, &e.JobID, &e.Pass, &e.Label, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InvalidateCredential flags a user's provider credential invalid.
func (s *PG) InvalidateCredential(ctx context.Context, userID, provider string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (user_id, provider, valid, updated_at)
		VALUES ($1, $2, FALSE, now())
		ON CONFLICT (user_id, provider) DO UPDATE SET valid = FALSE, updated_at = now()`,
		userID, provider)
	if err != nil {
		return fmt.Errorf("failed to invalidate credential: %w", err)
	}
	return nil
}

// RecordCall inserts one completion call record.
func (s *PG) RecordCall(ctx context.Context, rec *CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	var jobID *string
	if rec.JobID != "" {
		jobID = &rec.JobID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO call_records (id, request_id, job_id, phase, provider, model,
			prompt_tokens, completion_tokens, total_tokens, truncated, duration_ms,
			error_type, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.RequestID, jobID, rec.Phase, rec.Provider, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.Truncated,
		rec.Duration.Milliseconds(), rec.ErrorType, rec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to record call: %w", err)
	}
	return nil
}

func jsonOrEmpty(v any) ([]byte, error) {
	if v == nil {
		return []byte(`{}`), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json field: %w", err)
	}
	return data, nil
}

// Verify interface
var _ Store = (*PG)(nil)
