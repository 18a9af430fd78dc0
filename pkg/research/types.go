package research

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects how the analyzer weighs depth against breadth.
type Mode string

const (
	ModeDepth    Mode = "depth"
	ModeBreadth  Mode = "breadth"
	ModeBalanced Mode = "balanced"
)

// ParseMode validates a mode string. An empty string means balanced.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeBalanced, nil
	case ModeDepth, ModeBreadth, ModeBalanced:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Decision is the analyzer's verdict on the information gathered so far.
type Decision string

const (
	DecisionSufficient Decision = "sufficient"
	DecisionNeedDetail Decision = "need_detail"
	DecisionNewQuery   Decision = "new_query"
)

var (
	ErrEmptyTopic   = errors.New("topic is required")
	ErrInvalidMode  = errors.New("invalid research mode")
	ErrInvalidLimit = errors.New("limits must be positive")
)

// RawSearchResult is a search hit before summarization.
type RawSearchResult struct {
	ID      string  `json:"id"`
	Query   string  `json:"query"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Content string  `json:"content,omitempty"` // full page text, advanced fetches only
	Score   float64 `json:"score"`
}

// ProcessedSource is a summarized search result kept for the report.
type ProcessedSource struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Query      string   `json:"query"`
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"key_points"`
	Relevance  float64  `json:"relevance"`
	RawContent string   `json:"raw_content"`
}

// DetailTarget points at a collected source that needs a full-content fetch.
type DetailTarget struct {
	SourceID string `json:"source_id"`
	Reason   string `json:"reason"`
}

// AnalysisResult is the analyzer's assessment of the gathered sources.
type AnalysisResult struct {
	Decision        Decision       `json:"decision"`
	Reasoning       string         `json:"reasoning"`
	DetailTargets   []DetailTarget `json:"detail_targets"`
	NewQueries      []string       `json:"new_queries"`
	QueryType       Mode           `json:"query_type"`
	CurrentCoverage float64        `json:"current_coverage"`
	KeyFindings     []string       `json:"key_findings"`
	Gaps            []string       `json:"gaps"`
}

// ProcessMessage is one progress line produced by a stage.
type ProcessMessage struct {
	Node      string `json:"node"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func newMessage(node, typ, content string) ProcessMessage {
	return ProcessMessage{
		Node:      node,
		Type:      typ,
		Content:   content,
		Timestamp: time.Now().Format("15:04:05"),
	}
}

// Request describes a research run. Nil limits fall back to Defaults.
type Request struct {
	Topic            string `json:"topic" binding:"required"`
	Mode             string `json:"mode"`
	MaxIterations    *int   `json:"max_iterations,omitempty"`
	MaxDetailFetches *int   `json:"max_detail_fetches,omitempty"`
}

// Defaults holds the process-wide limits applied to requests that leave them unset.
type Defaults struct {
	MaxIterations    int
	MaxDetailFetches int
	Mode             Mode
}
