package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/crestline-labs/duework/internal/completion"
	"github.com/crestline-labs/duework/internal/pipeline"
	"github.com/crestline-labs/duework/internal/store"
)

type stubPhase struct {
	name     string
	output   string
	err      error
	optional bool
}

func (p *stubPhase) Name() string { return p.name }

func (p *stubPhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	return p.output, p.err
}

func (p *stubPhase) Optional() bool { return p.optional }

func newWorker(t *testing.T, mem *store.Memory, phases []pipeline.Phase) *Worker {
	t.Helper()
	gateway := completion.NewGateway(completion.GatewayConfig{
		Client: completion.NewMockClient(),
	})
	w, err := New(Config{
		Store:   mem,
		Gateway: gateway,
		Queues: []QueueDescriptor{
			{
				Queue:  "panel",
				Phases: func(job *store.Job) ([]pipeline.Phase, error) { return phases, nil },
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func createJob(t *testing.T, mem *store.Memory, queue string) *store.Job {
	t.Helper()
	job := &store.Job{Queue: queue, UserID: "u1"}
	if err := mem.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func TestTickRunsClaimedJobToComplete(t *testing.T) {
	mem := store.NewMemory()
	job := createJob(t, mem, "panel")

	w := newWorker(t, mem, []pipeline.Phase{
		&stubPhase{name: "profile", output: "profile text"},
		&stubPhase{name: "report", output: "report text"},
	})
	w.Tick(context.Background())

	got, _ := mem.GetJob(context.Background(), job.ID)
	if got.Status != store.StatusComplete {
		t.Fatalf("status = %s, want complete", got.Status)
	}
	if got.RawFiles["profile"] != "profile text" {
		t.Errorf("raw files = %v", got.RawFiles)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestTickNoQueuedJobsIsQuiet(t *testing.T) {
	mem := store.NewMemory()
	w := newWorker(t, mem, nil)
	w.Tick(context.Background()) // must not panic or create state
	jobs, _ := mem.ListJobs(context.Background(), "", 10)
	if len(jobs) != 0 {
		t.Errorf("unexpected jobs: %v", jobs)
	}
}

func TestTickPhaseErrorMarksJobError(t *testing.T) {
	mem := store.NewMemory()
	job := createJob(t, mem, "panel")

	w := newWorker(t, mem, []pipeline.Phase{
		&stubPhase{name: "profile", err: errors.New("model unavailable")},
	})
	w.Tick(context.Background())

	got, _ := mem.GetJob(context.Background(), job.ID)
	if got.Status != store.StatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("error_message not recorded")
	}
}

func TestTickUnauthorizedInvalidatesCredential(t *testing.T) {
	mem := store.NewMemory()
	job := createJob(t, mem, "panel")

	authErr := &completion.APIError{
		Type:     completion.ErrorTypeUnauthorized,
		Status:   401,
		Provider: "mock",
		Message:  "invalid api key",
	}
	w := newWorker(t, mem, []pipeline.Phase{
		&stubPhase{name: "profile", err: authErr},
	})
	w.Tick(context.Background())

	got, _ := mem.GetJob(context.Background(), job.ID)
	if got.Status != store.StatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if !mem.CredentialInvalidated("u1", "mock") {
		t.Error("credential not invalidated on unauthorized error")
	}
}

func TestTickOptionalMissingMarksPartial(t *testing.T) {
	mem := store.NewMemory()
	job := createJob(t, mem, "panel")

	w := newWorker(t, mem, []pipeline.Phase{
		&stubPhase{name: "report", output: "report"},
		&stubPhase{name: "exec_summary", output: "", optional: true},
	})
	w.Tick(context.Background())

	got, _ := mem.GetJob(context.Background(), job.ID)
	if got.Status != store.StatusPartial {
		t.Fatalf("status = %s, want partial", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Errorf("partial is not an error state, got message %q", got.ErrorMessage)
	}
}

func TestTickClaimErrorContinues(t *testing.T) {
	mem := store.NewMemory()
	mem.ClaimErr = errors.New("store unavailable")
	createJob(t, mem, "panel")

	w := newWorker(t, mem, []pipeline.Phase{
		&stubPhase{name: "profile", output: "x"},
	})
	w.Tick(context.Background()) // logs and moves on

	mem.ClaimErr = nil
	w.Tick(context.Background()) // recovers next interval

	jobs, _ := mem.ListJobs(context.Background(), "panel", 10)
	if jobs[0].Status != store.StatusComplete {
		t.Errorf("status = %s, want complete after recovery", jobs[0].Status)
	}
}

func TestTickOneJobPerQueuePerTick(t *testing.T) {
	mem := store.NewMemory()
	createJob(t, mem, "panel")
	createJob(t, mem, "panel")

	w := newWorker(t, mem, []pipeline.Phase{
		&stubPhase{name: "profile", output: "x"},
	})
	w.Tick(context.Background())

	jobs, _ := mem.ListJobs(context.Background(), "panel", 10)
	var complete, queued int
	for _, j := range jobs {
		switch j.Status {
		case store.StatusComplete:
			complete++
		case store.StatusQueued:
			queued++
		}
	}
	if complete != 1 || queued != 1 {
		t.Errorf("complete=%d queued=%d, want exactly one job run per tick", complete, queued)
	}
}
