package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
)

const (
	planPromptMarker     = "You are a research planner"
	summaryPromptMarker  = "You condense web search results"
	analysisPromptMarker = "You are a research analyst"
	writerPromptMarker   = "You are a research writer"
)

// fakeLLM answers prompts through respond and streams chunks. Safe for the
// concurrent calls made by the summarizer.
type fakeLLM struct {
	mu      sync.Mutex
	prompts []string

	respond   func(prompt string) (string, error)
	chunks    []string
	streamErr error
	stream    func(ctx context.Context) iter.Seq2[string, error]
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ float64) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.respond == nil {
		return "", errors.New("no responder")
	}
	return f.respond(prompt)
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt string, _ float64) iter.Seq2[string, error] {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.stream != nil {
		return f.stream(ctx)
	}
	return func(yield func(string, error) bool) {
		for _, c := range f.chunks {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}
}

func (f *fakeLLM) count(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}

// fakeSearch returns perQuery results for every query unless the query is
// listed in fail. Extract returns one document per URL.
type fakeSearch struct {
	mu       sync.Mutex
	queries  []string
	urls     []string
	perQuery int
	fail     map[string]bool
	extract  func(url string) ([]RawSearchResult, error)
}

func (f *fakeSearch) Search(_ context.Context, query string, maxResults int) ([]RawSearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.fail[query] {
		return nil, fmt.Errorf("search %q: boom", query)
	}
	n := f.perQuery
	if n == 0 {
		n = 1
	}
	n = min(n, maxResults)
	out := make([]RawSearchResult, 0, n)
	for i := range n {
		out = append(out, RawSearchResult{
			Title:   fmt.Sprintf("%s #%d", query, i+1),
			URL:     fmt.Sprintf("https://example.com/%s/%d", strings.ReplaceAll(query, " ", "-"), i+1),
			Snippet: "snippet about " + query,
			Score:   0.9,
		})
	}
	return out, nil
}

func (f *fakeSearch) Extract(_ context.Context, url string) ([]RawSearchResult, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if f.extract != nil {
		return f.extract(url)
	}
	return []RawSearchResult{{Title: "full " + url, Content: "full text of " + url}}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(llm TextGenerator, search SearchProvider) *ResearchEngine {
	e := NewEngine(llm, search, Defaults{MaxIterations: 3, MaxDetailFetches: 5, Mode: ModeBalanced})
	e.Logger = quietLogger()
	return e
}

func newTestContext(topic string, maxIter, maxDetail int) *ResearchContext {
	rc, err := NewContext(Request{Topic: topic, MaxIterations: &maxIter, MaxDetailFetches: &maxDetail},
		Defaults{Mode: ModeBalanced})
	if err != nil {
		panic(err)
	}
	return rc
}

// scriptedResponder answers each stage prompt with a fixed JSON document.
func scriptedResponder(plan, summary, analysis string) func(string) (string, error) {
	return func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, planPromptMarker):
			return plan, nil
		case strings.Contains(prompt, summaryPromptMarker):
			return summary, nil
		case strings.Contains(prompt, analysisPromptMarker):
			return analysis, nil
		}
		return "", errors.New("unexpected prompt")
	}
}

const (
	testPlan    = `{"sub_queries": ["q1", "q2"], "keywords": ["x"], "reasoning": "r"}`
	testSummary = `{"summary": "a summary", "key_points": ["p1"], "relevance": 0.8}`
)

func collect(seq iter.Seq[Event]) []Event {
	var out []Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

// nodeTrace renders node_start/node_end events as "+node" and "-node".
func nodeTrace(events []Event) []string {
	var out []string
	for _, ev := range events {
		switch ev.Type {
		case EventNodeStart:
			out = append(out, "+"+ev.Data.(NodeData).Node)
		case EventNodeEnd:
			out = append(out, "-"+ev.Data.(NodeData).Node)
		}
	}
	return out
}

func countEvents(events []Event, t EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
