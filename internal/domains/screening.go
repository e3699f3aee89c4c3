package domains

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crestline-labs/duework/internal/pipeline"
	"github.com/crestline-labs/duework/internal/store"
)

// ScreeningQueue is the portfolio screening queue.
const ScreeningQueue = "screening"

func screeningPhases(job *store.Job) ([]pipeline.Phase, error) {
	return []pipeline.Phase{
		&screenCriteriaPhase{},
		&scorecardPhase{},
	}, nil
}

// screenCriteriaPhase derives the screening criteria from the mandate in
// the job profile.
type screenCriteriaPhase struct{}

func (p *screenCriteriaPhase) Name() string { return "screen_criteria" }

func (p *screenCriteriaPhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	mandate := profileString(run.Job, "mandate", "a diversified credit mandate")
	return complete(ctx, run, p.Name(),
		"You turn investment mandates into concrete screening criteria.",
		fmt.Sprintf("List screening criteria with pass/fail thresholds for: %s", mandate))
}

// scorecardPhase scores the uploaded documents against the criteria and
// projects the scores into parsed_data.
type scorecardPhase struct{}

func (p *scorecardPhase) Name() string { return "scorecard" }

func (p *scorecardPhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	results, err := completeOverDocuments(ctx, run, p.Name(),
		"You score candidates against screening criteria. Respond with a JSON object mapping criterion to {score, rationale}.",
		fmt.Sprintf("Score the attached documents against these criteria:\n\n%s", run.Raw("screen_criteria")))
	if err != nil {
		return "", err
	}
	return joinLabeled(results), nil
}

// Parse pulls the scorecard object out of the raw text. Scores that fail
// to parse keep the raw text only, screening is advisory.
func (p *scorecardPhase) Parse(ctx context.Context, run *pipeline.Run, raw string) (any, error) {
	start := -1
	for i, c := range raw {
		if c == '{' {
			start = i
			break
		}
	}
	end := -1
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i] == '}' {
			end = i
			break
		}
	}
	if start < 0 || end < start {
		return map[string]any{"raw": raw}, nil
	}

	var scores map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return map[string]any{"raw": raw}, nil
	}
	return scores, nil
}
