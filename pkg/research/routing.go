package research

// Stage names one node of the pipeline graph.
type Stage string

const (
	StagePlanner          Stage = "planner"
	StageSearcherBasic    Stage = "searcher_basic"
	StageSearcherAdvanced Stage = "searcher_advanced"
	StageSummarizer       Stage = "summarizer"
	StageAnalyzer         Stage = "analyzer"
	StageWriter           Stage = "writer"

	// StageFinish ends the loop; the writer runs afterwards.
	StageFinish Stage = "finish"
)

// edges is the static part of the graph. The analyzer is the only node
// without an entry; its successor comes from Route.
var edges = map[Stage]Stage{
	StagePlanner:          StageSearcherBasic,
	StageSearcherBasic:    StageSummarizer,
	StageSearcherAdvanced: StageSummarizer,
	StageSummarizer:       StageAnalyzer,
}

// Route picks the stage that follows the analyzer. Exhausted budgets
// override the requested action.
func Route(d Decision, iteration, maxIterations, detailFetches, maxDetailFetches int) Stage {
	switch d {
	case DecisionSufficient:
		return StageFinish
	case DecisionNeedDetail:
		if detailFetches >= maxDetailFetches {
			return StageFinish
		}
		return StageSearcherAdvanced
	case DecisionNewQuery:
		if iteration >= maxIterations {
			return StageFinish
		}
		return StageSearcherBasic
	default:
		return StageFinish
	}
}

// next returns the successor of s given the current context.
func next(s Stage, rc *ResearchContext) Stage {
	if s == StageAnalyzer {
		if rc.Analysis == nil {
			return StageFinish
		}
		return Route(rc.Analysis.Decision, rc.Iteration, rc.MaxIterations, rc.DetailFetches, rc.MaxDetailFetches)
	}
	if n, ok := edges[s]; ok {
		return n
	}
	return StageFinish
}
