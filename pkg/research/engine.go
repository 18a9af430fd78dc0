package research

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// TextGenerator is the text-generation collaborator.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
	// GenerateStream yields fragments until the generation ends. Breaking out
	// of the loop or cancelling ctx aborts the underlying call.
	GenerateStream(ctx context.Context, prompt string, temperature float64) iter.Seq2[string, error]
}

// SearchProvider is the web-search collaborator. Ids are assigned by the
// engine, so providers leave RawSearchResult.ID empty.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]RawSearchResult, error)
	// Extract fetches the full content behind url.
	Extract(ctx context.Context, url string) ([]RawSearchResult, error)
}

// Archiver stores intermediate results for later inspection.
type Archiver interface {
	SaveSearchResults(results []RawSearchResult, iteration int, kind string) (string, error)
	SaveSummaryRecords(records []SummaryRecord, iteration int) (string, error)
}

// Observer is notified around every stage. Returning an error stops the run.
type Observer interface {
	StageStarted(stage Stage) error
	StageFinished(stage Stage, u Update, rc *ResearchContext) error
}

type ResearchEngine struct {
	LLM      TextGenerator
	Search   SearchProvider
	Archive  Archiver // optional
	Defaults Defaults
	Logger   *slog.Logger

	// MaxResults is the number of hits requested per search query.
	MaxResults int
	// Concurrency bounds the per-query and per-result loops inside a stage.
	Concurrency int

	OnStateUpdate func(state ResearchContext)
}

func NewEngine(llm TextGenerator, search SearchProvider, defaults Defaults) *ResearchEngine {
	return &ResearchEngine{
		LLM:         llm,
		Search:      search,
		Defaults:    defaults,
		Logger:      slog.Default(),
		MaxResults:  3,
		Concurrency: 3,
	}
}

type stageFunc func(ctx context.Context, rc *ResearchContext) (Update, error)

func (e *ResearchEngine) stage(s Stage) (stageFunc, bool) {
	switch s {
	case StagePlanner:
		return e.plan, true
	case StageSearcherBasic:
		return e.searchBasic, true
	case StageSearcherAdvanced:
		return e.searchAdvanced, true
	case StageSummarizer:
		return e.summarize, true
	case StageAnalyzer:
		return e.analyze, true
	}
	return nil, false
}

// maxSteps bounds the number of stage invocations in one run. A run that
// hits it is finished as if its budget ran out.
func maxSteps(rc *ResearchContext) int {
	return 4 + 6*(rc.MaxIterations+rc.MaxDetailFetches)
}

// Run drives the stage graph from the planner until routing says finish.
// Stages run one at a time; each update is merged before the next starts.
// The writer is not part of the loop, see Events.
func (e *ResearchEngine) Run(ctx context.Context, rc *ResearchContext, obs Observer) error {
	e.Logger.Info("Starting research loop", "topic", rc.Topic, "mode", rc.Mode,
		"max_iterations", rc.MaxIterations, "max_detail_fetches", rc.MaxDetailFetches)

	limit := maxSteps(rc)
	stage := StagePlanner
	for steps := 0; stage != StageFinish; steps++ {
		if steps >= limit {
			e.Logger.Warn("Step limit reached, finishing research", "steps", steps)
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if obs != nil {
			if err := obs.StageStarted(stage); err != nil {
				return err
			}
		}

		u, err := e.invoke(ctx, stage, rc)
		if err != nil {
			return fmt.Errorf("%s failed: %w", stage, err)
		}
		// A cancelled run must not publish the result of its last stage.
		if err := ctx.Err(); err != nil {
			return err
		}

		rc.Apply(u)
		if e.OnStateUpdate != nil {
			e.OnStateUpdate(rc.Snapshot())
		}
		if obs != nil {
			if err := obs.StageFinished(stage, u, rc); err != nil {
				return err
			}
		}

		stage = next(stage, rc)
	}

	e.Logger.Info("Research loop finished", "sources", len(rc.Sources), "iteration", rc.Iteration,
		"detail_fetches", rc.DetailFetches)
	return nil
}

func (e *ResearchEngine) invoke(ctx context.Context, s Stage, rc *ResearchContext) (u Update, err error) {
	fn, ok := e.stage(s)
	if !ok {
		return Update{}, fmt.Errorf("unknown stage %q", s)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, rc)
}

// forEach runs fn for 0..n-1 on at most Concurrency goroutines. fn owns its
// own failures; a panic only loses that item.
func (e *ResearchEngine) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	limit := e.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.Logger.Error("Item worker panicked", "index", i, "panic", r)
				}
			}()
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *ResearchEngine) maxResults() int {
	if e.MaxResults <= 0 {
		return 3
	}
	return e.MaxResults
}
