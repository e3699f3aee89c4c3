package domains

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crestline-labs/duework/internal/pipeline"
	"github.com/crestline-labs/duework/internal/store"
)

// DebateQueue is the debate simulation queue.
const DebateQueue = "debate"

const debateRounds = 3

func debatePhases(job *store.Job) ([]pipeline.Phase, error) {
	return []pipeline.Phase{
		&motionBriefPhase{},
		&castSpecialistsPhase{},
		&debateRoundsPhase{rounds: debateRounds},
		&verdictPhase{},
	}, nil
}

// motionBriefPhase frames the motion under debate from the job profile.
type motionBriefPhase struct{}

func (p *motionBriefPhase) Name() string { return "motion_brief" }

func (p *motionBriefPhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	motion := profileString(run.Job, "motion", "the proposed investment")
	return complete(ctx, run, p.Name(),
		"You frame investment debate motions neutrally.",
		fmt.Sprintf("Write a neutral brief for the motion: %s", motion))
}

// castSpecialistsPhase asks the model for a debate cast and reconciles it
// into the specialists side table. The table is read fresh before every
// write: a resumed job may already hold rows from a prior attempt, and
// duplicates by name are not allowed.
type castSpecialistsPhase struct{}

func (p *castSpecialistsPhase) Name() string { return "cast_specialists" }

func (p *castSpecialistsPhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	raw, err := complete(ctx, run, p.Name(),
		"You cast debate panels. Respond with a JSON array of {name, stance, persona} objects, stance is \"for\" or \"against\".",
		fmt.Sprintf("Cast 4 specialists for this motion:\n\n%s", run.Raw("motion_brief")))
	if err != nil {
		return "", err
	}

	cast, err := parseCast(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse specialist cast: %w", err)
	}

	existing, err := run.Store.ListSpecialists(ctx, run.Job.ID)
	if err != nil {
		return "", err
	}
	byName := make(map[string]bool, len(existing))
	for _, sp := range existing {
		byName[sp.Name] = true
	}

	for _, sp := range cast {
		if byName[sp.Name] {
			continue
		}
		sp.JobID = run.Job.ID
		if err := run.Store.AddSpecialist(ctx, &sp); err != nil {
			return "", err
		}
	}
	return raw, nil
}

func parseCast(raw string) ([]store.Specialist, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no specialist array in output")
	}

	var cast []store.Specialist
	if err := json.Unmarshal([]byte(raw[start:end+1]), &cast); err != nil {
		return nil, err
	}
	if len(cast) == 0 {
		return nil, fmt.Errorf("empty specialist cast")
	}
	for _, sp := range cast {
		if sp.Name == "" {
			return nil, fmt.Errorf("specialist with empty name")
		}
	}
	return cast, nil
}

// debateRoundsPhase runs the rounds sequentially, each building on the
// transcript so far. Specialists are re-read from the store each round
// rather than cached, the side table is the source of truth.
type debateRoundsPhase struct {
	rounds int
}

func (p *debateRoundsPhase) Name() string { return "debate_rounds" }

func (p *debateRoundsPhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	var transcript strings.Builder
	transcript.WriteString(run.Raw("motion_brief"))

	for round := 1; round <= p.rounds; round++ {
		specialists, err := run.Store.ListSpecialists(ctx, run.Job.ID)
		if err != nil {
			return "", err
		}
		if len(specialists) == 0 {
			return "", fmt.Errorf("no specialists cast for debate")
		}

		names := make([]string, len(specialists))
		for i, sp := range specialists {
			names[i] = fmt.Sprintf("%s (%s)", sp.Name, sp.Stance)
		}

		out, err := complete(ctx, run, p.Name(),
			"You simulate one round of a structured investment debate.",
			fmt.Sprintf("Round %d of %d. Panel: %s.\n\nTranscript so far:\n\n%s",
				round, p.rounds, strings.Join(names, ", "), transcript.String()))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&transcript, "\n\n## Round %d\n\n%s", round, out)
	}

	return transcript.String(), nil
}

// verdictPhase concludes the debate.
type verdictPhase struct{}

func (p *verdictPhase) Name() string { return "verdict" }

func (p *verdictPhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	return complete(ctx, run, p.Name(),
		"You are the debate moderator delivering a reasoned verdict.",
		fmt.Sprintf("Deliver the verdict on the motion given this transcript:\n\n%s",
			run.Raw("debate_rounds")))
}
