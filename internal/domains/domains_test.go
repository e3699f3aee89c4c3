package domains

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/crestline-labs/duework/internal/completion"
	"github.com/crestline-labs/duework/internal/fanout"
	"github.com/crestline-labs/duework/internal/pipeline"
	"github.com/crestline-labs/duework/internal/store"
)

func testRun(t *testing.T, queue string, respond func(req *completion.Request) (string, error)) (*pipeline.Run, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	job := &store.Job{Queue: queue, UserID: "u1", Profile: map[string]any{
		"company": "Acme Industrial",
		"motion":  "Acme deserves an investment-grade rating",
		"mandate": "senior secured industrial credit",
	}}
	if err := mem.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	mock := completion.NewMockClient()
	mock.ResponseFn = respond
	gateway := completion.NewGateway(completion.GatewayConfig{Client: mock})

	return &pipeline.Run{
		Job:     job,
		Store:   mem,
		Gateway: gateway,
		Fanout:  fanout.NewCoordinator(gateway, nil),
		Documents: []completion.DocumentBlock{
			{Name: "filing.txt", MediaType: "text/plain", Data: []byte("annual report text")},
		},
	}, mem
}

func TestPanelPhasesRunToCompletion(t *testing.T) {
	run, mem := testRun(t, PanelQueue, func(req *completion.Request) (string, error) {
		return "analysis for " + req.Phase, nil
	})

	phases, err := panelPhases(run.Job)
	if err != nil {
		t.Fatalf("panelPhases: %v", err)
	}
	report, err := pipeline.Execute(context.Background(), run, phases)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Partial() {
		t.Errorf("unexpected partial: %v", report.MissingOptional)
	}

	job, _ := mem.GetJob(context.Background(), run.Job.ID)
	for _, phase := range []string{"company_profile", "risk_angles", "panel_report", "exec_summary"} {
		if job.RawFiles[phase] == "" {
			t.Errorf("phase %s has no raw output", phase)
		}
	}
	// Each risk angle contributes its own section.
	for _, angle := range riskAngles {
		if !strings.Contains(job.RawFiles["risk_angles"], "## "+angle) {
			t.Errorf("risk_angles missing section for %q", angle)
		}
	}
}

func TestPanelExecSummaryFailureIsPartial(t *testing.T) {
	run, mem := testRun(t, PanelQueue, func(req *completion.Request) (string, error) {
		if req.Phase == "exec_summary" {
			return "", &completion.APIError{Type: completion.ErrorTypeOverloaded, Status: 529, Provider: "mock", Message: "overloaded"}
		}
		return "ok", nil
	})

	phases, _ := panelPhases(run.Job)
	report, err := pipeline.Execute(context.Background(), run, phases)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !report.Partial() {
		t.Fatal("expected partial report when optional summary fails")
	}

	job, _ := mem.GetJob(context.Background(), run.Job.ID)
	if _, present := job.RawFiles["exec_summary"]; present {
		t.Error("failed optional phase must not checkpoint")
	}
}

func TestExtractionPipelineMergesPasses(t *testing.T) {
	run, mem := testRun(t, ExtractionQueue, func(req *completion.Request) (string, error) {
		switch req.Phase {
		case "financials":
			return `{"company": "Acme", "financials": {"revenue": 500, "ebitda": 80},
				"notes": "Figures from annual report.",
				"overflow": [{"label": "footnote 9", "content": "pension deficit"}]}`, nil
		case "debt_schedule":
			return `{"facilities": [{"name": "RCF", "amount": 50}],
				"financials": {"revenue": 510},
				"notes": "Debt data from facility agreement."}`, nil
		case "covenants":
			return `{"covenants": [{"name": "leverage", "threshold": 3.5}]}`, nil
		default:
			return "", fmt.Errorf("unexpected phase %s", req.Phase)
		}
	})

	phases, _ := extractionPhases(run.Job)
	if _, err := pipeline.Execute(context.Background(), run, phases); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	job, _ := mem.GetJob(context.Background(), run.Job.ID)
	final, ok := job.ParsedData["extraction_final"].(map[string]any)
	if !ok {
		t.Fatalf("extraction_final = %T", job.ParsedData["extraction_final"])
	}

	fin, _ := final["financials"].(map[string]any)
	if fin["revenue"] != 510.0 {
		t.Errorf("revenue = %v, want 510 (later pass corrects)", fin["revenue"])
	}
	if fin["ebitda"] != 80.0 {
		t.Errorf("ebitda = %v, want 80 (earlier pass kept)", fin["ebitda"])
	}
	notes, _ := final["notes"].(string)
	if !strings.Contains(notes, "annual report") || !strings.Contains(notes, "facility agreement") {
		t.Errorf("narrative not accumulated: %q", notes)
	}

	overflow, _ := mem.ListOverflow(context.Background(), job.ID)
	if len(overflow) != 1 || overflow[0].Pass != "financials" || overflow[0].Label != "footnote 9" {
		t.Errorf("overflow = %+v", overflow)
	}
}

func TestExtractionUnparsedPrimaryIsFatal(t *testing.T) {
	run, _ := testRun(t, ExtractionQueue, func(req *completion.Request) (string, error) {
		if req.Phase == "financials" {
			return "I am unable to extract anything structured.", nil
		}
		return `{"facilities": [], "covenants": []}`, nil
	})

	phases, _ := extractionPhases(run.Job)
	_, err := pipeline.Execute(context.Background(), run, phases)
	if err == nil {
		t.Fatal("expected finalize to fail on unparsed primary pass")
	}
	if !strings.Contains(err.Error(), "could not be parsed") {
		t.Errorf("err = %v", err)
	}
}

func TestExtractionSecondaryFailureIsAbsorbed(t *testing.T) {
	run, mem := testRun(t, ExtractionQueue, func(req *completion.Request) (string, error) {
		switch req.Phase {
		case "financials":
			return `{"financials": {"revenue": 100}}`, nil
		case "debt_schedule":
			return "no structured output here", nil
		case "covenants":
			return `{"covenants": []}`, nil
		}
		return "", fmt.Errorf("unexpected phase %s", req.Phase)
	})

	phases, _ := extractionPhases(run.Job)
	if _, err := pipeline.Execute(context.Background(), run, phases); err != nil {
		t.Fatalf("secondary failure must be absorbed: %v", err)
	}

	job, _ := mem.GetJob(context.Background(), run.Job.ID)
	final, _ := job.ParsedData["extraction_final"].(map[string]any)
	fin, _ := final["financials"].(map[string]any)
	if fin["revenue"] != 100.0 {
		t.Errorf("prior accumulated state lost: %v", final)
	}
}

func TestExtractionOverflowIdempotentOnReparse(t *testing.T) {
	respond := func(req *completion.Request) (string, error) {
		return `{"financials": {}, "overflow": [{"label": "x", "content": "y"}]}`, nil
	}
	run, mem := testRun(t, ExtractionQueue, respond)

	pass := &extractionPass{shape: financialsShape, system: "s", user: "u"}
	raw, err := pass.Run(context.Background(), run)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := pass.Parse(context.Background(), run, raw); err != nil {
			t.Fatalf("Parse: %v", err)
		}
	}

	overflow, _ := mem.ListOverflow(context.Background(), run.Job.ID)
	if len(overflow) != 1 {
		t.Errorf("expected 1 overflow entry after re-parse, got %d", len(overflow))
	}
}

func TestDebateCastReconciliation(t *testing.T) {
	run, mem := testRun(t, DebateQueue, func(req *completion.Request) (string, error) {
		switch req.Phase {
		case "cast_specialists":
			return `Here is the panel:
[{"name": "Dr. Chen", "stance": "for", "persona": "rating agency veteran"},
 {"name": "M. Okafor", "stance": "against", "persona": "distressed debt investor"}]`, nil
		default:
			return "debate content", nil
		}
	})

	// A prior attempt already cast one specialist.
	_ = mem.AddSpecialist(context.Background(), &store.Specialist{
		JobID: run.Job.ID, Name: "Dr. Chen", Stance: "for",
	})

	phases, _ := debatePhases(run.Job)
	if _, err := pipeline.Execute(context.Background(), run, phases); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	specialists, _ := mem.ListSpecialists(context.Background(), run.Job.ID)
	if len(specialists) != 2 {
		t.Fatalf("expected 2 specialists after reconciliation, got %d", len(specialists))
	}

	job, _ := mem.GetJob(context.Background(), run.Job.ID)
	transcript := job.RawFiles["debate_rounds"]
	for round := 1; round <= debateRounds; round++ {
		if !strings.Contains(transcript, fmt.Sprintf("## Round %d", round)) {
			t.Errorf("transcript missing round %d", round)
		}
	}
}

func TestScreeningScorecardParsed(t *testing.T) {
	run, mem := testRun(t, ScreeningQueue, func(req *completion.Request) (string, error) {
		if req.Phase == "scorecard" {
			return `Scores: {"seniority": {"score": 4, "rationale": "senior secured"}}`, nil
		}
		return "criteria list", nil
	})

	phases, _ := screeningPhases(run.Job)
	if _, err := pipeline.Execute(context.Background(), run, phases); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	job, _ := mem.GetJob(context.Background(), run.Job.ID)
	scores, ok := job.ParsedData["scorecard"].(map[string]any)
	if !ok {
		t.Fatalf("scorecard = %T", job.ParsedData["scorecard"])
	}
	if _, ok := scores["seniority"]; !ok {
		t.Errorf("scores = %v", scores)
	}
}
