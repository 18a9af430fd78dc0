package research

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
)

const (
	minReportRelevance = 0.4
	minReportSources   = 3
	fallbackSources    = 5
	referencesHeading  = "## References"
)

// selectSources picks the sources the report cites. If fewer than three
// clear the relevance bar, the five most relevant are used instead.
func selectSources(sources []ProcessedSource) []ProcessedSource {
	var selected []ProcessedSource
	for _, s := range sources {
		if s.Relevance >= minReportRelevance {
			selected = append(selected, s)
		}
	}
	if len(selected) >= minReportSources {
		return selected
	}

	ranked := slices.Clone(sources)
	slices.SortStableFunc(ranked, func(a, b ProcessedSource) int {
		switch {
		case a.Relevance > b.Relevance:
			return -1
		case a.Relevance < b.Relevance:
			return 1
		}
		return 0
	})
	if len(ranked) > fallbackSources {
		ranked = ranked[:fallbackSources]
	}
	return ranked
}

func citationMap(sources []ProcessedSource) map[string]int {
	m := make(map[string]int, len(sources))
	for i, s := range sources {
		m[s.ID] = i + 1
	}
	return m
}

func formatReferences(sources []ProcessedSource) string {
	var b strings.Builder
	b.WriteString("\n\n---\n\n" + referencesHeading + "\n\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s - %s\n", i+1, s.Title, s.URL)
	}
	return b.String()
}

// WriteReport streams the final report for rc. The references section is
// yielded as the last fragment unless the model already wrote one. A
// generation error is yielded once and ends the sequence.
func (e *ResearchEngine) WriteReport(ctx context.Context, rc *ResearchContext) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		selected := selectSources(rc.Sources)
		citations := citationMap(selected)
		e.Logger.Info("Writing report", "sources", len(selected), "findings", len(rc.AllFindings))

		prompt := fmt.Sprintf(writerPrompt, rc.Topic,
			formatSourcesForWriter(selected, citations), formatFindings(rc.AllFindings))

		var text strings.Builder
		for chunk, err := range e.LLM.GenerateStream(ctx, prompt, 0.7) {
			if err != nil {
				yield("", fmt.Errorf("report generation failed: %w", err))
				return
			}
			if chunk == "" {
				continue
			}
			text.WriteString(chunk)
			if !yield(chunk, nil) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}

		if len(selected) > 0 && !strings.Contains(text.String(), referencesHeading) {
			yield(formatReferences(selected), nil)
		}
	}
}
