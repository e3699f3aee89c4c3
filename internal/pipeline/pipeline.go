// Package pipeline runs a job's phases in order against the raw_files
// checkpoint map. A phase with a present, non-empty raw_files entry is
// complete and is never re-executed; that entry is the sole idempotency
// marker, so a crashed job resumes from its last persisted phase at no
// additional completion-service cost.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/crestline-labs/duework/internal/completion"
	"github.com/crestline-labs/duework/internal/fanout"
	"github.com/crestline-labs/duework/internal/store"
)

// Phase is one unit of job work. Run returns the phase's raw output,
// which the executor persists to raw_files before anything else happens.
type Phase interface {
	Name() string
	Run(ctx context.Context, run *Run) (string, error)
}

// Parser is implemented by phases whose raw output projects into a
// structured parsed_data entry. Parse must be pure (no network): it is
// re-run against cached raw text when a job resumes with the raw entry
// present but the structured projection missing.
type Parser interface {
	Parse(ctx context.Context, run *Run, raw string) (any, error)
}

// Optional marks phases whose empty output leaves the job partial
// instead of errored.
type Optional interface {
	Optional() bool
}

// Run carries one job's execution state and collaborators through its
// phases.
type Run struct {
	Job       *store.Job
	Store     store.Store
	Gateway   *completion.Gateway
	Fanout    *fanout.Coordinator
	Documents []completion.DocumentBlock
	Logger    *slog.Logger
}

// Raw returns a prior phase's cached raw output.
func (r *Run) Raw(phase string) string {
	return r.Job.RawFiles[phase]
}

// Parsed returns a prior phase's structured projection.
func (r *Run) Parsed(phase string) any {
	return r.Job.ParsedData[phase]
}

// Profile returns the job's domain profile map.
func (r *Run) Profile() map[string]any {
	return r.Job.Profile
}

// Report summarizes one executor pass over a job's phases.
type Report struct {
	Executed        []string
	Skipped         []string
	MissingOptional []string
}

// Partial reports whether the job finished with required phases done but
// at least one optional phase producing no output.
func (rep *Report) Partial() bool {
	return len(rep.MissingOptional) > 0
}

// Execute runs phases in order. Completed phases (non-empty raw_files
// entry) are skipped, re-deriving only their parsed projection when it
// is missing. Raw output is persisted before the parsed projection so a
// crash between the two writes resumes via the pure parse path. The
// first phase error aborts the job at its checkpoint; there are no
// retries here.
func Execute(ctx context.Context, run *Run, phases []Phase) (*Report, error) {
	logger := run.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("job_id", run.Job.ID, "queue", run.Job.Queue)

	report := &Report{}
	for _, phase := range phases {
		name := phase.Name()

		if raw := run.Job.RawFiles[name]; raw != "" {
			report.Skipped = append(report.Skipped, name)
			if err := reparseIfMissing(ctx, run, phase, raw); err != nil {
				return report, err
			}
			logger.Debug("phase already complete", "phase", name)
			continue
		}

		if err := run.Store.SetCurrentPhase(ctx, run.Job.ID, name); err != nil {
			return report, err
		}
		run.Job.CurrentPhase = name
		logger.Info("running phase", "phase", name)

		raw, err := phase.Run(ctx, run)
		if err != nil {
			return report, err
		}

		if raw == "" {
			if opt, ok := phase.(Optional); ok && opt.Optional() {
				report.MissingOptional = append(report.MissingOptional, name)
				logger.Warn("optional phase produced no output", "phase", name)
				continue
			}
		}

		if err := run.Store.SaveRawFile(ctx, run.Job.ID, name, raw); err != nil {
			return report, err
		}
		if run.Job.RawFiles == nil {
			run.Job.RawFiles = make(map[string]string)
		}
		run.Job.RawFiles[name] = raw

		if err := saveParsed(ctx, run, phase, raw); err != nil {
			return report, err
		}

		report.Executed = append(report.Executed, name)
	}

	return report, nil
}

// reparseIfMissing re-derives a skipped phase's structured projection
// from its cached raw text. Never re-calls the completion service.
func reparseIfMissing(ctx context.Context, run *Run, phase Phase, raw string) error {
	parser, ok := phase.(Parser)
	if !ok {
		return nil
	}
	if _, present := run.Job.ParsedData[phase.Name()]; present {
		return nil
	}
	return parseAndSave(ctx, run, phase.Name(), parser, raw)
}

func saveParsed(ctx context.Context, run *Run, phase Phase, raw string) error {
	parser, ok := phase.(Parser)
	if !ok {
		return nil
	}
	return parseAndSave(ctx, run, phase.Name(), parser, raw)
}

func parseAndSave(ctx context.Context, run *Run, name string, parser Parser, raw string) error {
	value, err := parser.Parse(ctx, run, raw)
	if err != nil {
		return err
	}
	if err := run.Store.SaveParsedData(ctx, run.Job.ID, map[string]any{name: value}); err != nil {
		return err
	}
	if run.Job.ParsedData == nil {
		run.Job.ParsedData = make(map[string]any)
	}
	run.Job.ParsedData[name] = value
	return nil
}
