package research

import (
	"context"
	"fmt"
	"strings"
)

// searchBasic runs one search per current query. A failed query only loses
// its own results.
func (e *ResearchEngine) searchBasic(ctx context.Context, rc *ResearchContext) (Update, error) {
	node := string(StageSearcherBasic)
	queries := rc.CurrentQueries
	if len(queries) == 0 {
		e.Logger.Warn("No queries to search, skipping")
		return Update{
			Messages: Some([]ProcessMessage{newMessage(node, "warning", "No search queries, search skipped")}),
		}, nil
	}

	e.Logger.Info("Starting sourcing phase", "queries", len(queries))
	batches := make([][]RawSearchResult, len(queries))
	e.forEach(ctx, len(queries), func(ctx context.Context, i int) {
		results, err := e.Search.Search(ctx, queries[i], e.maxResults())
		if err != nil {
			e.Logger.Warn("Search failed", "query", queries[i], "error", err)
			return
		}
		for j := range results {
			results[j].Query = queries[i]
		}
		batches[i] = results
	})

	results, seq := assignIDs(batches, rc.SourceSeq)
	e.Logger.Info("Search complete", "results", len(results))
	e.archiveSearch(results, rc.Iteration, "basic")

	u := Update{
		RawResults: Some(results),
		SourceSeq:  Some(seq),
		Messages: Some([]ProcessMessage{
			newMessage(node, "search", "Search queries: "+strings.Join(queries, ", ")),
			newMessage(node, "result", fmt.Sprintf("Got %d search results", len(results))),
		}),
	}
	// Only a new_query decision starts a new iteration; the first search
	// after planning belongs to iteration 1.
	if rc.Analysis != nil && rc.Analysis.Decision == DecisionNewQuery {
		u.Iteration = Some(rc.Iteration + 1)
	}
	return u, nil
}

// searchAdvanced fetches the full content of the sources the analyzer
// flagged. Targets whose source id is unknown are dropped.
func (e *ResearchEngine) searchAdvanced(ctx context.Context, rc *ResearchContext) (Update, error) {
	node := string(StageSearcherAdvanced)

	var urls []string
	seen := make(map[string]bool)
	for _, t := range rc.PendingDetailTargets {
		src, ok := rc.sourceByID(t.SourceID)
		if !ok || src.URL == "" || seen[src.URL] {
			continue
		}
		seen[src.URL] = true
		urls = append(urls, src.URL)
	}

	if len(urls) == 0 {
		e.Logger.Warn("No detail targets resolved to a source", "targets", len(rc.PendingDetailTargets))
		return Update{
			PendingDetailTargets: Some([]DetailTarget{}),
			Messages:             Some([]ProcessMessage{newMessage(node, "warning", "No URLs found for the requested deep dive")}),
		}, nil
	}

	e.Logger.Info("Fetching full content", "urls", len(urls))
	batches := make([][]RawSearchResult, len(urls))
	e.forEach(ctx, len(urls), func(ctx context.Context, i int) {
		results, err := e.Search.Extract(ctx, urls[i])
		if err != nil {
			e.Logger.Warn("Extract failed", "url", urls[i], "error", err)
			return
		}
		for j := range results {
			results[j].Query = rc.Topic
			results[j].Score = 1.0
			if results[j].URL == "" {
				results[j].URL = urls[i]
			}
		}
		batches[i] = results
	})

	results, seq := assignIDs(batches, rc.SourceSeq)
	e.archiveSearch(results, rc.Iteration, "advanced")

	return Update{
		RawResults:           Some(results),
		SourceSeq:            Some(seq),
		DetailFetches:        Some(rc.DetailFetches + 1),
		PendingDetailTargets: Some([]DetailTarget{}),
		Messages: Some([]ProcessMessage{
			newMessage(node, "deep_dive", fmt.Sprintf("Deep dive into %d sources", len(urls))),
			newMessage(node, "result", fmt.Sprintf("Got %d full documents", len(results))),
		}),
	}, nil
}

// assignIDs flattens batches in input order and numbers every result after
// seq. It returns the new counter value.
func assignIDs(batches [][]RawSearchResult, seq int) ([]RawSearchResult, int) {
	var out []RawSearchResult
	for _, batch := range batches {
		for _, r := range batch {
			seq++
			r.ID = fmt.Sprintf("src_%d", seq)
			out = append(out, r)
		}
	}
	if out == nil {
		out = []RawSearchResult{}
	}
	return out, seq
}

func (e *ResearchEngine) archiveSearch(results []RawSearchResult, iteration int, kind string) {
	if e.Archive == nil {
		return
	}
	path, err := e.Archive.SaveSearchResults(results, iteration, kind)
	if err != nil {
		e.Logger.Warn("Failed to archive search results", "error", err)
		return
	}
	e.Logger.Debug("Archived search results", "path", path)
}
