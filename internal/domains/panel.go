package domains

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/crestline-labs/duework/internal/pipeline"
	"github.com/crestline-labs/duework/internal/store"
)

// PanelQueue is the credit panel generation queue.
const PanelQueue = "panel"

// riskAngles are the independent analytical angles examined in parallel.
var riskAngles = []string{"liquidity", "leverage", "market position", "governance"}

func panelPhases(job *store.Job) ([]pipeline.Phase, error) {
	return []pipeline.Phase{
		&companyProfilePhase{},
		&riskAnglesPhase{},
		&panelReportPhase{},
		&execSummaryPhase{},
	}, nil
}

// companyProfilePhase builds the company profile from the uploaded
// documents, chunked when they exceed the page budget.
type companyProfilePhase struct{}

func (p *companyProfilePhase) Name() string { return "company_profile" }

func (p *companyProfilePhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	company := profileString(run.Job, "company", "the subject company")
	results, err := completeOverDocuments(ctx, run, p.Name(),
		"You are a credit analyst preparing a company profile.",
		fmt.Sprintf("Profile %s from the attached documents: business model, scale, ownership, recent developments.", company))
	if err != nil {
		return "", err
	}
	return joinLabeled(results), nil
}

// riskAnglesPhase examines each risk angle with an independent parallel
// completion call and joins the findings.
type riskAnglesPhase struct{}

func (p *riskAnglesPhase) Name() string { return "risk_angles" }

func (p *riskAnglesPhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	profile := run.Raw("company_profile")

	outputs := make([]string, len(riskAngles))
	errs := make([]error, len(riskAngles))

	var wg sync.WaitGroup
	for i, angle := range riskAngles {
		wg.Add(1)
		go func(i int, angle string) {
			defer wg.Done()
			outputs[i], errs[i] = complete(ctx, run, p.Name(),
				"You are a credit analyst assessing one specific risk dimension.",
				fmt.Sprintf("Assess %s risk given this company profile:\n\n%s", angle, profile))
		}(i, angle)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return "", err
		}
	}

	var b strings.Builder
	for i, angle := range riskAngles {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", angle, outputs[i])
	}
	return b.String(), nil
}

// panelReportPhase synthesizes the panel report from prior outputs.
type panelReportPhase struct{}

func (p *panelReportPhase) Name() string { return "panel_report" }

func (p *panelReportPhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	return complete(ctx, run, p.Name(),
		"You are the chair of a credit panel writing the final report.",
		fmt.Sprintf("Write the panel report.\n\nCompany profile:\n%s\n\nRisk assessment:\n%s",
			run.Raw("company_profile"), run.Raw("risk_angles")))
}

// execSummaryPhase is optional: if it produces nothing the job finishes
// partial rather than errored.
type execSummaryPhase struct{}

func (p *execSummaryPhase) Name() string { return "exec_summary" }

func (p *execSummaryPhase) Optional() bool { return true }

func (p *execSummaryPhase) Run(ctx context.Context, run *pipeline.Run) (string, error) {
	out, err := complete(ctx, run, p.Name(),
		"You summarize credit panel reports for executives.",
		fmt.Sprintf("Summarize in one page:\n\n%s", run.Raw("panel_report")))
	if err != nil {
		// Optional output: absorb the failure, the report itself stands.
		return "", nil
	}
	return strings.TrimSpace(out), nil
}
