package research

import (
	"context"
	"fmt"
	"strings"
)

type plannerOutput struct {
	SubQueries []string `json:"sub_queries"`
	Keywords   []string `json:"keywords"`
	Reasoning  string   `json:"reasoning"`
}

// plan decomposes the topic into sub-queries. It never fails: any problem
// with the collaborator falls back to templated queries.
func (e *ResearchEngine) plan(ctx context.Context, rc *ResearchContext) (Update, error) {
	e.Logger.Info("Starting planning phase", "topic", rc.Topic)

	out, err := e.requestPlan(ctx, rc)
	if err != nil {
		e.Logger.Warn("Planner output unusable, using default split", "error", err)
		out = fallbackPlan(rc.Topic)
	}
	if len(out.Keywords) == 0 {
		out.Keywords = strings.Fields(rc.Topic)
	}

	e.Logger.Info("Generated queries", "queries", out.SubQueries, "keywords", out.Keywords)

	node := string(StagePlanner)
	shown := out.SubQueries
	if len(shown) > 3 {
		shown = shown[:3]
	}
	kw := out.Keywords
	if len(kw) > 5 {
		kw = kw[:5]
	}
	messages := []ProcessMessage{
		newMessage(node, "plan", fmt.Sprintf("Generated %d sub-questions: %s", len(out.SubQueries), strings.Join(shown, ", "))),
		newMessage(node, "keywords", "Keywords: "+strings.Join(kw, ", ")),
	}

	return Update{
		SubQueries:     Some(out.SubQueries),
		Keywords:       Some(out.Keywords),
		CurrentQueries: Some(out.SubQueries),
		Messages:       Some(messages),
	}, nil
}

func (e *ResearchEngine) requestPlan(ctx context.Context, rc *ResearchContext) (plannerOutput, error) {
	text, err := e.LLM.Generate(ctx, fmt.Sprintf(plannerPrompt, rc.Topic, rc.Mode), 0.7)
	if err != nil {
		return plannerOutput{}, fmt.Errorf("llm generation failed: %w", err)
	}
	var out plannerOutput
	if err := decodeJSONObject(text, &out); err != nil {
		return plannerOutput{}, err
	}
	out.SubQueries = nonEmpty(out.SubQueries)
	out.Keywords = nonEmpty(out.Keywords)
	if len(out.SubQueries) == 0 {
		return plannerOutput{}, fmt.Errorf("empty sub_queries list")
	}
	return out, nil
}

func fallbackPlan(topic string) plannerOutput {
	return plannerOutput{
		SubQueries: []string{
			topic + " basic concepts",
			topic + " recent developments",
			topic + " applications",
		},
		Keywords:  strings.Fields(topic),
		Reasoning: "default split",
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
