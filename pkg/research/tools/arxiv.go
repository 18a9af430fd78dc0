package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/research"
)

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

func (e ArxivEntry) pdfLink() string {
	for _, link := range e.Link {
		if link.Type == "application/pdf" {
			return link.Href
		}
	}
	return ""
}

// Arxiv searches the arXiv API. Full content comes from the PDF through
// the OCR scraper when one is configured, otherwise from the abstract page.
type Arxiv struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	scraper *PDFScraper
	fetcher *HTTPFetcher
}

// NewArxiv builds the provider. arXiv asks clients for one request every
// three seconds. scraper may be nil.
func NewArxiv(scraper *PDFScraper) *Arxiv {
	return &Arxiv{
		baseURL: "https://export.arxiv.org/api/query",
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
		scraper: scraper,
		fetcher: NewHTTPFetcher(),
	}
}

func (a *Arxiv) Search(ctx context.Context, query string, maxResults int) ([]research.RawSearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := a.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned non-200 status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}
	slog.Debug("arXiv search", "query", query, "entries", len(feed.Entry))

	results := make([]research.RawSearchResult, 0, len(feed.Entry))
	for i, entry := range feed.Entry {
		link := strings.TrimSpace(entry.ID)
		if link == "" {
			link = entry.pdfLink()
		}
		results = append(results, research.RawSearchResult{
			Title:   collapseSpace(entry.Title),
			URL:     link,
			Snippet: collapseSpace(entry.Summary),
			// arXiv returns no score; rank order stands in for it.
			Score: 1 / float64(i+1),
		})
	}
	return results, nil
}

// Extract returns the paper text for an arXiv abstract or PDF URL.
func (a *Arxiv) Extract(ctx context.Context, link string) ([]research.RawSearchResult, error) {
	var (
		content string
		err     error
	)
	if a.scraper != nil {
		content, err = a.scraper.ScrapePDF(ctx, pdfURL(link))
	} else {
		content, err = a.fetcher.Fetch(ctx, link)
	}
	if err != nil {
		return nil, err
	}
	return []research.RawSearchResult{{Title: link, URL: link, Content: content}}, nil
}

// pdfURL maps an arXiv abstract link to its PDF.
func pdfURL(link string) string {
	if strings.Contains(link, "/abs/") {
		return strings.Replace(link, "/abs/", "/pdf/", 1)
	}
	return link
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
