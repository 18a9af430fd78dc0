package research

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

type analyzerOutput struct {
	Decision        string         `json:"decision"`
	Reasoning       string         `json:"reasoning"`
	DetailTargets   []DetailTarget `json:"detail_targets"`
	NewQueries      []string       `json:"new_queries"`
	QueryType       string         `json:"query_type"`
	CurrentCoverage *float64       `json:"current_coverage"`
	KeyFindings     []string       `json:"key_findings"`
	Gaps            []string       `json:"gaps"`
}

// analyze judges coverage and picks the next action. Once the iteration
// budget is used up it answers sufficient without asking the model.
func (e *ResearchEngine) analyze(ctx context.Context, rc *ResearchContext) (Update, error) {
	node := string(StageAnalyzer)

	if rc.Iteration >= rc.MaxIterations {
		e.Logger.Info("Iteration limit reached, skipping analysis", "max_iterations", rc.MaxIterations)
		a := &AnalysisResult{
			Decision:        DecisionSufficient,
			Reasoning:       fmt.Sprintf("reached the maximum of %d iterations", rc.MaxIterations),
			DetailTargets:   []DetailTarget{},
			NewQueries:      []string{},
			QueryType:       ModeBreadth,
			CurrentCoverage: 0.8,
			KeyFindings:     slices.Clone(rc.AllFindings),
			Gaps:            []string{},
		}
		// all_findings is append-only, so the restated findings are not returned.
		return Update{
			Analysis: Some(a),
			Messages: Some([]ProcessMessage{newMessage(node, "decision", "Iteration limit reached, preparing the report")}),
		}, nil
	}

	e.Logger.Info("Starting analysis", "sources", len(rc.Sources), "iteration", rc.Iteration, "max", rc.MaxIterations)

	a, err := e.requestAnalysis(ctx, rc)
	if err != nil {
		e.Logger.Warn("Analysis output unusable, using default decision", "error", err)
		a = fallbackAnalysis(rc, err)
	}
	if a.Decision == DecisionNewQuery && len(a.NewQueries) == 0 {
		a.NewQueries = []string{genericQuery(rc.Topic)}
	}

	e.Logger.Info("Analysis decision", "decision", a.Decision, "coverage", a.CurrentCoverage)

	messages := []ProcessMessage{
		newMessage(node, "analysis", fmt.Sprintf("Coverage: %.0f%%", a.CurrentCoverage*100)),
		newMessage(node, "decision", fmt.Sprintf("Decision: %s - %s", a.Decision, truncateRunes(a.Reasoning, 100))),
	}

	u := Update{
		Analysis:    Some(a),
		AllFindings: Some(a.KeyFindings),
	}
	switch a.Decision {
	case DecisionNewQuery:
		u.CurrentQueries = Some(a.NewQueries)
		messages = append(messages, newMessage(node, "new_query", "New queries: "+strings.Join(a.NewQueries, ", ")))
	case DecisionNeedDetail:
		u.PendingDetailTargets = Some(a.DetailTargets)
		ids := make([]string, 0, len(a.DetailTargets))
		for _, t := range a.DetailTargets {
			ids = append(ids, t.SourceID)
		}
		messages = append(messages, newMessage(node, "deep_dive", "Deep dive needed: "+strings.Join(ids, ", ")))
	}
	u.Messages = Some(messages)
	return u, nil
}

func (e *ResearchEngine) requestAnalysis(ctx context.Context, rc *ResearchContext) (*AnalysisResult, error) {
	text, err := e.LLM.Generate(ctx, buildAnalyzerPrompt(rc), 0.3)
	if err != nil {
		return nil, fmt.Errorf("llm generation failed: %w", err)
	}
	var out analyzerOutput
	if err := decodeJSONObject(text, &out); err != nil {
		return nil, err
	}

	a := &AnalysisResult{
		Decision:        Decision(strings.TrimSpace(out.Decision)),
		Reasoning:       out.Reasoning,
		DetailTargets:   out.DetailTargets,
		NewQueries:      nonEmpty(out.NewQueries),
		QueryType:       Mode(out.QueryType),
		CurrentCoverage: 0.5,
		KeyFindings:     out.KeyFindings,
		Gaps:            out.Gaps,
	}
	if a.Decision == "" {
		a.Decision = DecisionSufficient
	}
	if a.QueryType != ModeDepth && a.QueryType != ModeBreadth {
		a.QueryType = ModeBreadth
	}
	if out.CurrentCoverage != nil {
		a.CurrentCoverage = clamp01(*out.CurrentCoverage)
	}
	if a.DetailTargets == nil {
		a.DetailTargets = []DetailTarget{}
	}
	if a.KeyFindings == nil {
		a.KeyFindings = []string{}
	}
	if a.Gaps == nil {
		a.Gaps = []string{}
	}
	return a, nil
}

func fallbackAnalysis(rc *ResearchContext, cause error) *AnalysisResult {
	a := &AnalysisResult{
		Decision:        DecisionSufficient,
		Reasoning:       "default decision after unusable analysis: " + cause.Error(),
		DetailTargets:   []DetailTarget{},
		NewQueries:      []string{},
		QueryType:       ModeDepth,
		CurrentCoverage: 0.5,
		KeyFindings:     []string{},
		Gaps:            []string{},
	}
	if rc.Iteration < rc.MaxIterations {
		a.Decision = DecisionNewQuery
		a.NewQueries = []string{genericQuery(rc.Topic)}
	}
	return a
}

func genericQuery(topic string) string {
	return topic + " in-depth analysis"
}
