package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/research"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEFAULT_MAX_ITERATIONS", "")
	t.Setenv("DEFAULT_MODE", "")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, research.Defaults{MaxIterations: 3, MaxDetailFetches: 5, Mode: research.ModeBalanced},
		cfg.ResearchDefaults())
	assert.Equal(t, 3, cfg.WorkerConcurrency)
}

func TestLoadFileOverlay(t *testing.T) {
	path := writeFile(t, `
default_max_iterations: 4
default_mode: depth
search_provider: arxiv
port: "8080"
`)
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_MAX_ITERATIONS", "")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.DefaultMaxIterations)
	assert.Equal(t, research.ModeDepth, cfg.ResearchDefaults().Mode)
	assert.Equal(t, "arxiv", cfg.SearchProvider)
	assert.Equal(t, "9090", cfg.Port, "environment wins over the file")
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad yaml", body: "default_max_iterations: [1"},
		{name: "bad mode", body: "default_mode: sideways"},
		{name: "zero iterations", body: "default_max_iterations: 0"},
		{name: "unknown provider", body: "llm_provider: carrier-pigeon"},
		{name: "env invalid mode", body: "", env: map[string]string{"DEFAULT_MODE": "up"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DEFAULT_MODE", "")
			t.Setenv("DEFAULT_MAX_ITERATIONS", "")
			t.Setenv("LLM_PROVIDER", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
