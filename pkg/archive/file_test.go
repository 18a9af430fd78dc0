package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/research"
)

func newTestArchive(t *testing.T) *FileArchive {
	t.Helper()
	a, err := NewFileArchive(filepath.Join(t.TempDir(), "search_results"))
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	return a
}

func TestSaveSearchResults(t *testing.T) {
	a := newTestArchive(t)
	results := []research.RawSearchResult{{ID: "src_1", Title: "t", URL: "https://x", Snippet: "s", Score: 0.4}}

	path, err := a.SaveSearchResults(results, 2, "advanced")
	require.NoError(t, err)
	assert.Equal(t, "20250304_050607_iter2_advanced.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got searchFile
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 2, got.Iteration)
	assert.Equal(t, "advanced", got.Type)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, results, got.Results)
}

func TestSaveSummaryRecords(t *testing.T) {
	a := newTestArchive(t)
	records := []research.SummaryRecord{
		{ID: "src_1", Kept: true},
		{ID: "src_2", Error: "timeout", Kept: true},
		{ID: "src_3"},
	}

	path, err := a.SaveSummaryRecords(records, 1)
	require.NoError(t, err)
	assert.Equal(t, "20250304_050607_iter1_summary.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got summaryFile
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, 2, got.Kept)
}
