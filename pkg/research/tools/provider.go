package tools

import (
	"fmt"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// NewProvider returns the search provider selected by SEARCH_PROVIDER.
func NewProvider(cfg *config.Config) (research.SearchProvider, error) {
	switch cfg.SearchProvider {
	case "tavily":
		if cfg.TavilyApiKey == "" {
			return nil, fmt.Errorf("TAVILY_API_KEY is not set")
		}
		return NewTavily(cfg.TavilyApiKey, cfg.SearchRateLimit), nil
	case "arxiv":
		var scraper *PDFScraper
		if cfg.MistralApiKey != "" {
			scraper = NewPDFScraper(cfg.MistralApiKey)
		}
		return NewArxiv(scraper), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.SearchProvider)
	}
}
