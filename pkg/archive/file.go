// Package archive keeps the intermediate results of research runs on disk
// as JSON files, one per search or summarization batch.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

const timestampLayout = "20060102_150405"

type searchFile struct {
	Timestamp string                     `json:"timestamp"`
	Iteration int                        `json:"iteration"`
	Type      string                     `json:"type"`
	Count     int                        `json:"count"`
	Results   []research.RawSearchResult `json:"results"`
}

type summaryFile struct {
	Timestamp string                   `json:"timestamp"`
	Iteration int                      `json:"iteration"`
	Count     int                      `json:"count"`
	Kept      int                      `json:"kept"`
	Records   []research.SummaryRecord `json:"records"`
}

// FileArchive writes batches below Dir.
type FileArchive struct {
	Dir string
	now func() time.Time
}

func NewFileArchive(dir string) (*FileArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	return &FileArchive{Dir: dir, now: time.Now}, nil
}

// SaveSearchResults stores one search batch; kind is basic or advanced.
func (a *FileArchive) SaveSearchResults(results []research.RawSearchResult, iteration int, kind string) (string, error) {
	ts := a.now()
	return a.write(fmt.Sprintf("%s_iter%d_%s.json", ts.Format(timestampLayout), iteration, kind), searchFile{
		Timestamp: ts.Format(time.RFC3339),
		Iteration: iteration,
		Type:      kind,
		Count:     len(results),
		Results:   results,
	})
}

func (a *FileArchive) SaveSummaryRecords(records []research.SummaryRecord, iteration int) (string, error) {
	ts := a.now()
	kept := 0
	for _, r := range records {
		if r.Kept {
			kept++
		}
	}
	return a.write(fmt.Sprintf("%s_iter%d_summary.json", ts.Format(timestampLayout), iteration), summaryFile{
		Timestamp: ts.Format(time.RFC3339),
		Iteration: iteration,
		Count:     len(records),
		Kept:      kept,
		Records:   records,
	})
}

func (a *FileArchive) write(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive %s: %w", name, err)
	}
	path := filepath.Join(a.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write archive %s: %w", name, err)
	}
	return path, nil
}
