package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type PdfScrapeResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OcrResponse struct {
	Pages []PdfScrapeResponsePage `json:"pages"`
}

// PDFScraper extracts PDF text through the Mistral OCR API.
type PDFScraper struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewPDFScraper(apiKey string) *PDFScraper {
	return &PDFScraper{
		apiKey:  apiKey,
		baseURL: "https://api.mistral.ai/v1/ocr",
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// ScrapePDF returns the Markdown of every page of the document at url.
func (s *PDFScraper) ScrapePDF(ctx context.Context, url string) (string, error) {
	url = strings.Replace(url, "http://", "https://", 1)
	if s.apiKey == "" {
		return "", fmt.Errorf("MISTRAL_API_KEY is not set")
	}

	slog.Info("Scraping PDF", "url", url)

	reqBody := map[string]any{
		"model": "mistral-ocr-latest",
		"document": map[string]string{
			"type":         "document_url",
			"document_url": url,
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, string(body))
	}

	var ocr OcrResponse
	if err := json.Unmarshal(body, &ocr); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var b strings.Builder
	for _, page := range ocr.Pages {
		fmt.Fprintf(&b, "- Page %d -\n%s\n\n", page.Index, page.Markdown)
	}
	return b.String(), nil
}
