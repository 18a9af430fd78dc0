package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/research"
)

// offlineLLM fails every structured call so the stages use their fallbacks,
// and streams a fixed report.
type offlineLLM struct{}

func (offlineLLM) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	return "", errors.New("offline")
}

func (offlineLLM) GenerateStream(ctx context.Context, prompt string, temperature float64) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, s := range []string{"# Report\n\n", "Body [1]."} {
			if !yield(s, nil) {
				return
			}
		}
	}
}

type staticSearch struct{}

func (staticSearch) Search(ctx context.Context, query string, maxResults int) ([]research.RawSearchResult, error) {
	return []research.RawSearchResult{{
		Query:   query,
		Title:   "Result for " + query,
		URL:     "https://example.com/" + strings.ReplaceAll(query, " ", "-"),
		Snippet: "snippet about " + query,
		Score:   0.9,
	}}, nil
}

func (staticSearch) Extract(ctx context.Context, url string) ([]research.RawSearchResult, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := research.NewEngine(offlineLLM{}, staticSearch{}, research.Defaults{
		MaxIterations:    1,
		MaxDetailFetches: 0,
		Mode:             research.ModeBalanced,
	})
	engine.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(context.Background(), nil, engine, nil)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// sseEvents returns the event names of an SSE body in order.
func sseEvents(t *testing.T, body string) []string {
	t.Helper()
	var names []string
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	require.NoError(t, sc.Err())
	return names
}

func TestHealth(t *testing.T) {
	w := do(newTestRouter(t), http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"deep-research","version":"`+Version+`"}`, w.Body.String())
}

func TestGetConfig(t *testing.T) {
	w := do(newTestRouter(t), http.MethodGet, "/api/config", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"max_iterations": 1,
		"max_detail_fetches": 0,
		"default_mode": "balanced",
		"modes": ["depth", "breadth", "balanced"]
	}`, w.Body.String())
}

func TestStreamResearch(t *testing.T) {
	w := do(newTestRouter(t), http.MethodPost, "/api/research/stream", `{"topic":"solid state batteries"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	names := sseEvents(t, w.Body.String())
	require.NotEmpty(t, names)
	assert.Equal(t, "start", names[0])
	assert.Equal(t, "complete", names[len(names)-1])
	assert.Contains(t, names, "report_start")
	assert.Contains(t, names, "report_chunk")
	assert.NotContains(t, names, "error")

	assert.Contains(t, w.Body.String(), `data: {"topic":"solid state batteries","mode":"balanced"}`)
	assert.Contains(t, w.Body.String(), "## References")
}

func TestStreamResearchRejectsInvalidRequests(t *testing.T) {
	r := newTestRouter(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing topic", `{}`},
		{"blank topic", `{"topic":"   "}`},
		{"unknown mode", `{"topic":"x","mode":"sideways"}`},
		{"zero iterations", `{"topic":"x","max_iterations":0}`},
		{"malformed json", `{"topic":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/research/stream", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestJobsRequireDatabase(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/research", `{"topic":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodGet, "/api/research", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodGet, "/api/research/0b7c2f8e-4d43-4b55-9b43-5e3cbe0f6b10", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodGet, "/api/research/0b7c2f8e-4d43-4b55-9b43-5e3cbe0f6b10/logs", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetJobInvalidID(t *testing.T) {
	w := do(newTestRouter(t), http.MethodGet, "/api/research/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchSources(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/sources/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/sources/search?q=batteries&top_k=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/sources/search?q=batteries", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodGet, "/api/sources/content", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/sources/content?url=https://example.com", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNoDatabase, http.StatusServiceUnavailable},
		{ErrNoIndex, http.StatusServiceUnavailable},
		{ErrJobNotFound, http.StatusNotFound},
		{research.ErrEmptyTopic, http.StatusBadRequest},
		{research.ErrInvalidMode, http.StatusBadRequest},
		{research.ErrInvalidLimit, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
