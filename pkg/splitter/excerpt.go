package splitter

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const excerptChunkSize = 200

// LocateRelevant reduces text to the maxSegments chunks with the highest
// keyword density, kept in their original order and joined by "...".
// Without any keyword hit it returns the first and last chunk.
func LocateRelevant(text string, keywords []string, maxSegments int) string {
	if text == "" {
		return ""
	}
	if maxSegments <= 0 {
		maxSegments = 5
	}

	chunks := NewRecursiveCharacterTextSplitter(excerptChunkSize, 0).SplitNonEmpty(text)
	if len(chunks) == 0 {
		return ""
	}

	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}

	type scored struct {
		idx     int
		density float64
	}
	var hits []scored
	for i, c := range chunks {
		lc := strings.ToLower(c)
		n := 0
		for _, kw := range lowered {
			n += strings.Count(lc, kw)
		}
		if n > 0 {
			hits = append(hits, scored{idx: i, density: float64(n) / float64(utf8.RuneCountInString(c))})
		}
	}

	if len(hits) == 0 {
		if len(chunks) == 1 {
			return chunks[0]
		}
		return chunks[0] + "\n...\n" + chunks[len(chunks)-1]
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].density > hits[b].density })
	if len(hits) > maxSegments {
		hits = hits[:maxSegments]
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].idx < hits[b].idx })

	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, strings.TrimSpace(chunks[h.idx]))
	}
	return strings.Join(parts, "\n...\n")
}
