// Package store persists jobs and their side tables in Postgres.
//
// The jobs table is the source of truth for the whole system: worker
// processes coordinate exclusively through its row locks, and the
// raw_files column is the resumability checkpoint for the pipeline.
package store

import (
	"context"
	"time"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	// StatusComplete means every phase produced output.
	StatusComplete Status = "complete"
	// StatusPartial means all required phases completed but at least one
	// optional phase produced no output. A legitimate terminal state,
	// distinct from error.
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Job is one row of orchestrated work.
type Job struct {
	ID     string `json:"id"`
	Queue  string `json:"queue"`
	UserID string `json:"user_id,omitempty"`

	Status       Status `json:"status"`
	CurrentPhase string `json:"current_phase,omitempty"`

	// RawFiles maps phase name to that phase's raw textual output.
	// A present, non-empty entry marks the phase complete; this map is
	// the sole idempotency marker for resumption.
	RawFiles map[string]string `json:"raw_files,omitempty"`

	// ParsedData is the structured projection built incrementally as
	// phases complete, keyed by phase name.
	ParsedData map[string]any `json:"parsed_data,omitempty"`

	// Profile carries the job's domain inputs (company name, motion
	// text, screening criteria, ...) as set by the submitter.
	Profile map[string]any `json:"profile,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job is in a terminal state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusComplete, StatusPartial, StatusError:
		return true
	}
	return false
}

// Specialist is one dynamically cast debate participant, persisted to a
// side table as the cast_specialists phase discovers them.
type Specialist struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Name      string    `json:"name"`
	Stance    string    `json:"stance"`
	Persona   string    `json:"persona"`
	CreatedAt time.Time `json:"created_at"`
}

// OverflowEntry is extraction data that did not fit a declared shape,
// keyed by the pass that produced it. Never dropped.
type OverflowEntry struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Pass      string    `json:"pass"`
	Label     string    `json:"label"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CallRecord is the persisted audit record of one completion call.
type CallRecord struct {
	ID               string        `json:"id"`
	RequestID        string        `json:"request_id"`
	JobID            string        `json:"job_id,omitempty"`
	Phase            string        `json:"phase,omitempty"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model,omitempty"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Truncated        bool          `json:"truncated"`
	Duration         time.Duration `json:"duration"`
	ErrorType        string        `json:"error_type,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Store is the persistence surface used by the executor, the worker
// loop, and the HTTP control plane. Postgres implements it for
// production; Memory implements it for tests.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, queue string, limit int) ([]*Job, error)

	// Claim atomically selects the oldest queued job on the queue,
	// transitions it to running, and returns it. Returns (nil, nil)
	// when no eligible job exists. Safe under arbitrarily many
	// concurrent claimers: no job is ever returned twice.
	Claim(ctx context.Context, queue string) (*Job, error)

	// SaveRawFile writes one phase's raw output into raw_files.
	SaveRawFile(ctx context.Context, jobID, phase, content string) error
	// SaveParsedData merges fields into parsed_data.
	SaveParsedData(ctx context.Context, jobID string, fields map[string]any) error
	SetCurrentPhase(ctx context.Context, jobID, phase string) error
	// SetStatus records a terminal or lifecycle status transition.
	// errMsg is stored only for StatusError.
	SetStatus(ctx context.Context, jobID string, status Status, errMsg string) error
	// RetryJob transitions an errored job back to queued, clearing the
	// error. The raw_files checkpoint is left intact so completed
	// phases are skipped on re-entry.
	RetryJob(ctx context.Context, jobID string) error

	ListSpecialists(ctx context.Context, jobID string) ([]Specialist, error)
	AddSpecialist(ctx context.Context, sp *Specialist) error

	AddOverflow(ctx context.Context, entry *OverflowEntry) error
	ListOverflow(ctx context.Context, jobID string) ([]OverflowEntry, error)

	// InvalidateCredential flags a user's provider credential invalid
	// so the submitter stops queueing work against it.
	InvalidateCredential(ctx context.Context, userID, provider string) error

	RecordCall(ctx context.Context, rec *CallRecord) error
}
