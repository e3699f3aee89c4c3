package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory implements Store with in-memory storage for unit tests.
// Claim provides the same "exactly one claimer wins" guarantee as the
// Postgres implementation, scoped to a single process.
// Error injection is supported for testing error handling paths.
type Memory struct {
	mu sync.Mutex

	jobs        map[string]*Job
	specialists map[string][]Specialist
	overflow    map[string][]OverflowEntry
	invalidated map[string]bool // "userID/provider"
	calls       []CallRecord

	// --- Error injection fields for testing ---

	// SaveRawFileErr is returned by SaveRawFile when non-nil.
	SaveRawFileErr error
	// SaveParsedDataErr is returned by SaveParsedData when non-nil.
	SaveParsedDataErr error
	// ClaimErr is returned by Claim when non-nil.
	ClaimErr error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:        make(map[string]*Job),
		specialists: make(map[string][]Specialist),
		overflow:    make(map[string][]OverflowEntry),
		invalidated: make(map[string]bool),
	}
}

// CreateJob inserts a new job.
func (s *Memory) CreateJob(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt

	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob returns a job by ID.
func (s *Memory) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return cloneJob(job), nil
}

// ListJobs returns jobs, newest first, optionally filtered by queue.
func (s *Memory) ListJobs(ctx context.Context, queue string, limit int) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	var jobs []*Job
	for _, job := range s.jobs {
		if queue != "" && job.Queue != queue {
			continue
		}
		jobs = append(jobs, cloneJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Claim claims the oldest queued job on the queue, or (nil, nil).
func (s *Memory) Claim(ctx context.Context, queue string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ClaimErr != nil {
		return nil, s.ClaimErr
	}

	var oldest *Job
	for _, job := range s.jobs {
		if job.Queue != queue || job.Status != StatusQueued {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	oldest.Status = StatusRunning
	if oldest.StartedAt == nil {
		oldest.StartedAt = &now
	}
	oldest.UpdatedAt = now
	return cloneJob(oldest), nil
}

// SaveRawFile writes one phase's raw output into raw_files.
func (s *Memory) SaveRawFile(ctx context.Context, jobID, phase, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveRawFileErr != nil {
		return s.SaveRawFileErr
	}

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.RawFiles == nil {
		job.RawFiles = make(map[string]string)
	}
	job.RawFiles[phase] = content
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveParsedData merges fields into parsed_data.
func (s *Memory) SaveParsedData(ctx context.Context, jobID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveParsedDataErr != nil {
		return s.SaveParsedDataErr
	}

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.ParsedData == nil {
		job.ParsedData = make(map[string]any)
	}
	for k, v := range fields {
		job.ParsedData[k] = v
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// SetCurrentPhase records the phase in progress.
func (s *Memory) SetCurrentPhase(ctx context.Context, jobID, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.CurrentPhase = phase
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// SetStatus records a status transition.
func (s *Memory) SetStatus(ctx context.Context, jobID string, status Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.Status = status
	if status == StatusError {
		job.ErrorMessage = errMsg
	} else {
		job.ErrorMessage = ""
	}
	switch status {
	case StatusComplete, StatusPartial, StatusError:
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// RetryJob transitions an errored job back to queued.
func (s *Memory) RetryJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.Status != StatusError {
		return fmt.Errorf("job %s is not in error state", jobID)
	}
	job.Status = StatusQueued
	job.ErrorMessage = ""
	job.CompletedAt = nil
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// ListSpecialists returns the job's specialists, oldest first.
func (s *Memory) ListSpecialists(ctx context.Context, jobID string) ([]Specialist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Specialist, len(s.specialists[jobID]))
	copy(out, s.specialists[jobID])
	return out, nil
}

// AddSpecialist inserts a specialist; duplicate names are ignored.
func (s *Memory) AddSpecialist(ctx context.Context, sp *Specialist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.specialists[sp.JobID] {
		if existing.Name == sp.Name {
			return nil
		}
	}
	if sp.ID == "" {
		sp.ID = uuid.New().String()
	}
	sp.CreatedAt = time.Now().UTC()
	s.specialists[sp.JobID] = append(s.specialists[sp.JobID], *sp)
	return nil
}

// AddOverflow persists one overflow entry.
func (s *Memory) AddOverflow(ctx context.Context, entry *OverflowEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()
	s.overflow[entry.JobID] = append(s.overflow[entry.JobID], *entry)
	return nil
}

// ListOverflow returns the job's overflow entries, oldest first.
func (s *Memory) ListOverflow(ctx context.Context, jobID string) ([]OverflowEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]OverflowEntry, len(s.overflow[jobID]))
	copy(out, s.overflow[jobID])
	return out, nil
}

// InvalidateCredential flags a user's provider credential invalid.
func (s *Memory) InvalidateCredential(ctx context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated[userID+"/"+provider] = true
	return nil
}

// CredentialInvalidated reports whether a credential was invalidated
// (test assertion helper).
func (s *Memory) CredentialInvalidated(userID, provider string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated[userID+"/"+provider]
}

// RecordCall stores one completion call record.
func (s *Memory) RecordCall(ctx context.Context, rec *CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	s.calls = append(s.calls, *rec)
	return nil
}

// Calls returns all recorded completion calls (test assertion helper).
func (s *Memory) Calls() []CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallRecord, len(s.calls))
	copy(out, s.calls)
	return out
}

func cloneJob(job *Job) *Job {
	out := *job
	if job.RawFiles != nil {
		out.RawFiles = make(map[string]string, len(job.RawFiles))
		for k, v := range job.RawFiles {
			out.RawFiles[k] = v
		}
	}
	if job.ParsedData != nil {
		out.ParsedData = make(map[string]any, len(job.ParsedData))
		for k, v := range job.ParsedData {
			out.ParsedData[k] = v
		}
	}
	if job.Profile != nil {
		out.Profile = make(map[string]any, len(job.Profile))
		for k, v := range job.Profile {
			out.Profile[k] = v
		}
	}
	return &out
}

// Verify interface
var _ Store = (*Memory)(nil)
