package research

import (
	"fmt"
	"slices"
	"strings"
)

// ResearchContext is the state threaded through every stage of one run.
// Only the orchestrator mutates it, and only through Apply.
type ResearchContext struct {
	Topic string `json:"topic"`
	Mode  Mode   `json:"mode"`

	SubQueries           []string          `json:"sub_queries"`
	Keywords             []string          `json:"keywords"`
	CurrentQueries       []string          `json:"current_queries"`
	PendingDetailTargets []DetailTarget    `json:"pending_detail_targets"`
	RawResults           []RawSearchResult `json:"raw_results"`
	Sources              []ProcessedSource `json:"sources"`
	Analysis             *AnalysisResult   `json:"analysis"`
	AllFindings          []string          `json:"all_findings"`

	Iteration        int `json:"iteration"`
	MaxIterations    int `json:"max_iterations"`
	DetailFetches    int `json:"detail_fetches"`
	MaxDetailFetches int `json:"max_detail_fetches"`
	SourceSeq        int `json:"source_seq"`

	Report   string           `json:"report"`
	Messages []ProcessMessage `json:"messages"`
}

// NewContext builds a fresh context for req, filling unset limits from d.
func NewContext(req Request, d Defaults) (*ResearchContext, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	mode := d.Mode
	if req.Mode != "" || mode == "" {
		m, err := ParseMode(req.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	maxIter := d.MaxIterations
	if req.MaxIterations != nil {
		maxIter = *req.MaxIterations
	}
	maxDetail := d.MaxDetailFetches
	if req.MaxDetailFetches != nil {
		maxDetail = *req.MaxDetailFetches
	}
	if maxIter < 1 || maxDetail < 0 {
		return nil, fmt.Errorf("%w: max_iterations=%d max_detail_fetches=%d", ErrInvalidLimit, maxIter, maxDetail)
	}

	return &ResearchContext{
		Topic:            topic,
		Mode:             mode,
		Iteration:        1,
		MaxIterations:    maxIter,
		MaxDetailFetches: maxDetail,
	}, nil
}

// Opt marks an update field as present. The zero value means "leave untouched".
type Opt[T any] struct {
	Set   bool
	Value T
}

// Some wraps v as a present update field.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Set: true, Value: v}
}

// Update is the partial state a stage returns.
type Update struct {
	SubQueries           Opt[[]string]
	Keywords             Opt[[]string]
	CurrentQueries       Opt[[]string]
	PendingDetailTargets Opt[[]DetailTarget]
	RawResults           Opt[[]RawSearchResult]
	Sources              Opt[[]ProcessedSource]
	Analysis             Opt[*AnalysisResult]
	AllFindings          Opt[[]string]
	Iteration            Opt[int]
	DetailFetches        Opt[int]
	SourceSeq            Opt[int]
	Report               Opt[string]
	Messages             Opt[[]ProcessMessage]
}

// MergePolicy says how a returned field combines with the existing value.
type MergePolicy int

const (
	Replace MergePolicy = iota
	Append
)

func (p MergePolicy) String() string {
	if p == Append {
		return "append"
	}
	return "replace"
}

type fieldRule struct {
	name   string
	policy MergePolicy
	apply  func(dst *ResearchContext, u *Update, p MergePolicy)
}

// mergeTable is consulted after every stage. Scalars can only be replaced.
var mergeTable = []fieldRule{
	{"sub_queries", Replace, func(c *ResearchContext, u *Update, p MergePolicy) { mergeSlice(p, &c.SubQueries, u.SubQueries) }},
	{"keywords", Replace, func(c *ResearchContext, u *Update, p MergePolicy) { mergeSlice(p, &c.Keywords, u.Keywords) }},
	{"current_queries", Replace, func(c *ResearchContext, u *Update, p MergePolicy) { mergeSlice(p, &c.CurrentQueries, u.CurrentQueries) }},
	{"pending_detail_targets", Replace, func(c *ResearchContext, u *Update, p MergePolicy) {
		mergeSlice(p, &c.PendingDetailTargets, u.PendingDetailTargets)
	}},
	{"raw_results", Replace, func(c *ResearchContext, u *Update, p MergePolicy) { mergeSlice(p, &c.RawResults, u.RawResults) }},
	{"sources", Append, func(c *ResearchContext, u *Update, p MergePolicy) { mergeSlice(p, &c.Sources, u.Sources) }},
	{"analysis", Replace, func(c *ResearchContext, u *Update, _ MergePolicy) { mergeValue(&c.Analysis, u.Analysis) }},
	{"all_findings", Append, func(c *ResearchContext, u *Update, p MergePolicy) { mergeSlice(p, &c.AllFindings, u.AllFindings) }},
	{"iteration", Replace, func(c *ResearchContext, u *Update, _ MergePolicy) { mergeValue(&c.Iteration, u.Iteration) }},
	{"detail_fetches", Replace, func(c *ResearchContext, u *Update, _ MergePolicy) { mergeValue(&c.DetailFetches, u.DetailFetches) }},
	{"source_seq", Replace, func(c *ResearchContext, u *Update, _ MergePolicy) { mergeValue(&c.SourceSeq, u.SourceSeq) }},
	{"report", Replace, func(c *ResearchContext, u *Update, _ MergePolicy) { mergeValue(&c.Report, u.Report) }},
	{"messages", Append, func(c *ResearchContext, u *Update, p MergePolicy) { mergeSlice(p, &c.Messages, u.Messages) }},
}

// PolicyFor reports the merge policy of a context field by its JSON name.
func PolicyFor(field string) (MergePolicy, bool) {
	for _, r := range mergeTable {
		if r.name == field {
			return r.policy, true
		}
	}
	return Replace, false
}

func mergeSlice[T any](p MergePolicy, dst *[]T, src Opt[[]T]) {
	if !src.Set {
		return
	}
	if p == Append {
		*dst = slices.Concat(*dst, src.Value)
		return
	}
	*dst = slices.Clone(src.Value)
}

func mergeValue[T any](dst *T, src Opt[T]) {
	if src.Set {
		*dst = src.Value
	}
}

// Apply merges u into the context. The merge is computed on a copy and
// swapped in as a whole, so observers never see half of an update.
func (c *ResearchContext) Apply(u Update) {
	next := *c
	for _, r := range mergeTable {
		r.apply(&next, &u, r.policy)
	}
	*c = next
}

// Snapshot returns a copy whose slices do not alias the context.
func (c *ResearchContext) Snapshot() ResearchContext {
	s := *c
	s.SubQueries = slices.Clone(c.SubQueries)
	s.Keywords = slices.Clone(c.Keywords)
	s.CurrentQueries = slices.Clone(c.CurrentQueries)
	s.PendingDetailTargets = slices.Clone(c.PendingDetailTargets)
	s.RawResults = slices.Clone(c.RawResults)
	s.Sources = slices.Clone(c.Sources)
	s.AllFindings = slices.Clone(c.AllFindings)
	s.Messages = slices.Clone(c.Messages)
	if c.Analysis != nil {
		a := *c.Analysis
		s.Analysis = &a
	}
	return s
}

// sourceByID returns the collected source with the given id.
func (c *ResearchContext) sourceByID(id string) (ProcessedSource, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return ProcessedSource{}, false
}
