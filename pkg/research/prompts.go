package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const plannerPrompt = `You are a research planner.
Break the research topic down into 3-5 sub-questions that can each be searched independently,
and extract the most important keywords of the topic.

Topic: %s
Research mode: %s

Return the JSON object directly without any formatting or additional text:
{"sub_queries": ["..."], "keywords": ["..."], "reasoning": "..."}`

const summarizerPrompt = `You condense web search results for a research report.

Research topic: %s
Search query: %s
Source [%s]: %s
URL: %s

Content:
%s

Summarize the content with respect to the research topic, list its key points and rate
its relevance to the topic between 0 and 1.
Return the JSON object directly without any formatting or additional text:
{"summary": "...", "key_points": ["..."], "relevance": 0.0}`

const analyzerPrompt = `You are a research analyst. Decide whether the information collected so far
is enough to write the report, and what to do next if it is not.

## Topic
%s

## Research mode
%s

## Iteration
%d of at most %d

## Collected sources
%s

## Findings so far
%s
%s
## Options
1. sufficient - enough information to write the report
2. need_detail - some sources must be read in full (name them in detail_targets)
3. new_query - search again with new queries (list them in new_queries)

Return the JSON object directly without any formatting or additional text:
{
  "decision": "sufficient|need_detail|new_query",
  "reasoning": "...",
  "current_coverage": 0.75,
  "key_findings": ["..."],
  "gaps": ["..."],
  "detail_targets": [{"source_id": "src_1", "reason": "..."}],
  "new_queries": ["..."],
  "query_type": "depth|breadth"
}
detail_targets is only read for need_detail, new_queries and query_type only for new_query.`

const depthInstructions = `
## Depth mode
Dig into the core concepts. Are they explained thoroughly, with technical detail and mechanisms?
- A source mentions an important concept without detail: need_detail
- The core concepts are clear: sufficient
- More technical depth is needed: new_query with more specific queries
Do not branch out into other directions.
`

const breadthInstructions = `
## Breadth mode
Cover every major aspect of the topic. Is any important dimension missing?
- Important aspects not covered yet: new_query in new directions
- An overview per aspect is enough, need_detail is rarely needed
- Coverage is broad enough: sufficient
`

const balancedInstructions = `
## Balanced mode
Go broad first, then deep.
- First half (iteration <= max/2): cover the main aspects and note the key points worth deepening
- Second half: pick the 1-2 most important points and prefer need_detail or depth queries
`

const writerPrompt = `You are a research writer. Write a well-structured report in Markdown on the topic below,
using only the numbered sources and findings provided.

# Topic
%s

# Sources
%s

# Key findings
%s

Cite sources inline with their numbers, e.g. [1] or [2][3]. Structure the report with an
introduction, themed sections and a conclusion. Do not add a references section.`

func modeInstructions(m Mode) string {
	switch m {
	case ModeDepth:
		return depthInstructions
	case ModeBreadth:
		return breadthInstructions
	default:
		return balancedInstructions
	}
}

func buildAnalyzerPrompt(rc *ResearchContext) string {
	return fmt.Sprintf(analyzerPrompt, rc.Topic, rc.Mode, rc.Iteration, rc.MaxIterations,
		formatSourcesSummary(rc.Sources), formatFindings(rc.AllFindings), modeInstructions(rc.Mode))
}

func formatSourcesSummary(sources []ProcessedSource) string {
	if len(sources) == 0 {
		return "No sources collected yet."
	}
	var b strings.Builder
	for _, s := range sources {
		fmt.Fprintf(&b, "[%s] %s\n", s.ID, s.Title)
		fmt.Fprintf(&b, "    URL: %s\n", s.URL)
		fmt.Fprintf(&b, "    Summary: %s\n", s.Summary)
		if len(s.KeyPoints) > 0 {
			points := s.KeyPoints
			if len(points) > 3 {
				points = points[:3]
			}
			fmt.Fprintf(&b, "    Key points: %s\n", strings.Join(points, "; "))
		}
		fmt.Fprintf(&b, "    Relevance: %.2f\n\n", s.Relevance)
	}
	return b.String()
}

func formatSourcesForWriter(sources []ProcessedSource, citations map[string]int) string {
	if len(sources) == 0 {
		return "No sources."
	}
	var b strings.Builder
	for _, s := range sources {
		fmt.Fprintf(&b, "[%d]\nTitle: %s\nURL: %s\nSummary: %s\n", citations[s.ID], s.Title, s.URL, s.Summary)
		if len(s.KeyPoints) > 0 {
			b.WriteString("Key points:\n")
			for _, p := range s.KeyPoints {
				fmt.Fprintf(&b, "  - %s\n", p)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatFindings(findings []string) string {
	if len(findings) == 0 {
		return "None yet."
	}
	var b strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return b.String()
}

var errNoJSON = errors.New("no JSON object in response")

// decodeJSONObject unmarshals the outermost {...} of a model response,
// ignoring any prose or code fences around it.
func decodeJSONObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("json parse error: %w", err)
	}
	return nil
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
