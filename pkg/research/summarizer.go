package research

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mikeboe/deep-research/pkg/splitter"
)

const (
	// excerptThreshold is the content length above which only the most
	// keyword-dense excerpts are sent to the model.
	excerptThreshold = 1000
	maxPromptContent = 2000
	fallbackSummary  = 200

	// minSourceRelevance is the bar a summarized source has to clear to be kept.
	minSourceRelevance = 0.3
	defaultRelevance   = 0.5
)

// SummaryOutput is the structured answer of the summarization call.
type SummaryOutput struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Relevance *float64 `json:"relevance"`
}

// SummaryRecord describes how one raw result was processed.
type SummaryRecord struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	Query          string         `json:"query"`
	OriginalLength int            `json:"original_content_length"`
	UsedExcerpt    bool           `json:"used_keyword_locate"`
	Excerpt        string         `json:"located_content,omitempty"`
	Output         *SummaryOutput `json:"llm_output"`
	Error          string         `json:"error,omitempty"`
	Kept           bool           `json:"kept"`
}

type summarized struct {
	source *ProcessedSource
	record *SummaryRecord
}

// summarize turns raw results into sources. raw_results is always cleared.
func (e *ResearchEngine) summarize(ctx context.Context, rc *ResearchContext) (Update, error) {
	node := string(StageSummarizer)
	raw := rc.RawResults
	if len(raw) == 0 {
		e.Logger.Info("No search results to summarize")
		return Update{
			RawResults: Some([]RawSearchResult{}),
			Messages:   Some([]ProcessMessage{newMessage(node, "warning", "No search results to process")}),
		}, nil
	}

	messages := []ProcessMessage{
		newMessage(node, "processing", fmt.Sprintf("Processing %d search results...", len(raw))),
	}

	outcomes := make([]summarized, len(raw))
	e.forEach(ctx, len(raw), func(ctx context.Context, i int) {
		outcomes[i] = e.summarizeOne(ctx, rc, raw[i])
	})

	sources := []ProcessedSource{}
	var records []SummaryRecord
	for _, o := range outcomes {
		if o.record != nil {
			records = append(records, *o.record)
		}
		if o.source != nil {
			sources = append(sources, *o.source)
		}
	}

	if e.Archive != nil {
		if path, err := e.Archive.SaveSummaryRecords(records, rc.Iteration); err != nil {
			e.Logger.Warn("Failed to archive summary records", "error", err)
		} else {
			e.Logger.Debug("Archived summary records", "path", path)
		}
	}

	e.Logger.Info("Summarizing complete", "total", len(raw), "kept", len(sources))
	messages = append(messages, newMessage(node, "complete", fmt.Sprintf("Processed %d relevant sources", len(sources))))

	return Update{
		Sources:    Some(sources),
		RawResults: Some([]RawSearchResult{}),
		Messages:   Some(messages),
	}, nil
}

func (e *ResearchEngine) summarizeOne(ctx context.Context, rc *ResearchContext, r RawSearchResult) summarized {
	original := r.Content
	if original == "" {
		original = r.Snippet
	}
	if strings.TrimSpace(original) == "" {
		return summarized{}
	}

	rec := &SummaryRecord{
		ID:             r.ID,
		Title:          r.Title,
		URL:            r.URL,
		Query:          r.Query,
		OriginalLength: utf8.RuneCountInString(original),
	}

	content := original
	if rec.OriginalLength > excerptThreshold {
		content = splitter.LocateRelevant(original, rc.Keywords, 5)
		rec.UsedExcerpt = true
		rec.Excerpt = content
	}

	src := &ProcessedSource{
		ID:         r.ID,
		Title:      r.Title,
		URL:        r.URL,
		Query:      r.Query,
		RawContent: original,
	}

	out, err := e.requestSummary(ctx, rc.Topic, r, truncateRunes(content, maxPromptContent))
	if err != nil {
		// Keep the item on failure; the report can still cite it.
		e.Logger.Warn("Summarization failed, using raw content", "id", r.ID, "error", err)
		src.Summary = truncateRunes(content, fallbackSummary) + "..."
		src.KeyPoints = []string{}
		src.Relevance = defaultRelevance
		rec.Error = err.Error()
		rec.Kept = true
		return summarized{source: src, record: rec}
	}

	src.Summary = out.Summary
	src.KeyPoints = out.KeyPoints
	if src.KeyPoints == nil {
		src.KeyPoints = []string{}
	}
	src.Relevance = defaultRelevance
	if out.Relevance != nil {
		src.Relevance = clamp01(*out.Relevance)
	}
	rec.Output = out
	rec.Kept = src.Relevance >= minSourceRelevance

	if !rec.Kept {
		e.Logger.Info("Dropping low relevance source", "id", r.ID, "relevance", src.Relevance)
		return summarized{record: rec}
	}
	e.Logger.Info("Keeping source", "id", r.ID, "title", r.Title, "relevance", src.Relevance)
	return summarized{source: src, record: rec}
}

// requestSummary turns a collaborator panic into an error so the caller
// keeps the item with a fallback summary.
func (e *ResearchEngine) requestSummary(ctx context.Context, topic string, r RawSearchResult, content string) (out *SummaryOutput, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("summarization panicked: %v", p)
		}
	}()
	prompt := fmt.Sprintf(summarizerPrompt, topic, r.Query, r.ID, r.Title, r.URL, content)
	text, err := e.LLM.Generate(ctx, prompt, 0.3)
	if err != nil {
		return nil, fmt.Errorf("llm generation failed: %w", err)
	}
	out = &SummaryOutput{}
	if err := decodeJSONObject(text, out); err != nil {
		return nil, err
	}
	return out, nil
}
