package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/research"
)

const tavilyBaseURL = "https://api.tavily.com"

// Tavily calls the Tavily search and extract APIs.
type Tavily struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewTavily constructs a Tavily provider allowing rps requests per second.
// A non-positive rps disables pacing.
func NewTavily(apiKey string, rps float64) *Tavily {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Tavily{
		apiKey:  apiKey,
		baseURL: tavilyBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
	}
}

type tavilySearchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

type tavilyExtractResponse struct {
	Results []struct {
		URL        string `json:"url"`
		Title      string `json:"title"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
	FailedResults []struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"failed_results"`
}

// Search runs a basic-depth search. Snippets are Tavily's content excerpts.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]research.RawSearchResult, error) {
	var resp tavilySearchResponse
	err := t.post(ctx, "/search", map[string]any{
		"query":          query,
		"search_depth":   "basic",
		"max_results":    maxResults,
		"include_answer": false,
	}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]research.RawSearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, research.RawSearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Score:   r.Score,
		})
	}
	slog.Debug("Tavily search", "query", query, "results", len(results))
	return results, nil
}

// Extract fetches the full content of a single page.
func (t *Tavily) Extract(ctx context.Context, url string) ([]research.RawSearchResult, error) {
	var resp tavilyExtractResponse
	if err := t.post(ctx, "/extract", map[string]any{"urls": []string{url}}, &resp); err != nil {
		return nil, err
	}
	for _, f := range resp.FailedResults {
		slog.Warn("Tavily extract failed", "url", f.URL, "error", f.Error)
	}

	results := make([]research.RawSearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		results = append(results, research.RawSearchResult{
			Title:   title,
			URL:     r.URL,
			Content: r.RawContent,
		})
	}
	return results, nil
}

func (t *Tavily) post(ctx context.Context, path string, body map[string]any, out any) error {
	if strings.TrimSpace(t.apiKey) == "" {
		return errors.New("tavily: API key is missing")
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	body["api_key"] = t.apiKey
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("tavily %s: http %d: %s", path, resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode tavily response: %w", err)
	}
	return nil
}
