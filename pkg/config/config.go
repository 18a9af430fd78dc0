package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mikeboe/deep-research/pkg/research"
)

type Config struct {
	LLMProvider     string `yaml:"llm_provider"`
	GoogleApiKey    string `yaml:"google_api_key"`
	OpenAIApiKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicApiKey string `yaml:"anthropic_api_key"`
	ReasoningModel  string `yaml:"reasoning_model"`

	TavilyApiKey     string  `yaml:"tavily_api_key"`
	MistralApiKey    string  `yaml:"mistral_api_key"`
	SearchProvider   string  `yaml:"search_provider"`
	SearchMaxResults int     `yaml:"search_max_results"`
	SearchRateLimit  float64 `yaml:"search_rate_limit"` // requests per second

	DatabaseURL string `yaml:"database_url"`
	Port        string `yaml:"port"`

	DefaultMaxIterations    int    `yaml:"default_max_iterations"`
	DefaultMaxDetailFetches int    `yaml:"default_max_detail_fetches"`
	DefaultMode             string `yaml:"default_mode"`
	WorkerConcurrency       int    `yaml:"worker_concurrency"`
	ArchiveDir              string `yaml:"archive_dir"`

	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	EmbeddingModel string `yaml:"embedding_model"`
	CollectionName string `yaml:"collection_name"`
}

func defaults() *Config {
	return &Config{
		LLMProvider:             "google",
		SearchProvider:          "tavily",
		SearchMaxResults:        3,
		SearchRateLimit:         5,
		Port:                    "3000",
		DefaultMaxIterations:    3,
		DefaultMaxDetailFetches: 5,
		DefaultMode:             string(research.ModeBalanced),
		WorkerConcurrency:       3,
		ChunkSize:               1000,
		ChunkOverlap:            200,
		EmbeddingModel:          "gemini-embedding-001",
		CollectionName:          "research_sources",
	}
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile layers configuration: built-in defaults, then the YAML file at
// path (skipped when path is empty), then .env and environment variables.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLMProvider = getEnv("LLM_PROVIDER", c.LLMProvider)
	c.GoogleApiKey = getEnv("GOOGLE_API_KEY", c.GoogleApiKey)
	c.OpenAIApiKey = getEnv("OPENAI_API_KEY", c.OpenAIApiKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.AnthropicApiKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicApiKey)
	c.ReasoningModel = getEnv("REASONING_MODEL", c.ReasoningModel)

	c.TavilyApiKey = getEnv("TAVILY_API_KEY", c.TavilyApiKey)
	c.MistralApiKey = getEnv("MISTRAL_API_KEY", c.MistralApiKey)
	c.SearchProvider = getEnv("SEARCH_PROVIDER", c.SearchProvider)
	c.SearchMaxResults = getEnvAsInt("SEARCH_MAX_RESULTS", c.SearchMaxResults)
	c.SearchRateLimit = getEnvAsFloat("SEARCH_RATE_LIMIT", c.SearchRateLimit)

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.Port = getEnv("PORT", c.Port)

	c.DefaultMaxIterations = getEnvAsInt("DEFAULT_MAX_ITERATIONS", c.DefaultMaxIterations)
	c.DefaultMaxDetailFetches = getEnvAsInt("DEFAULT_MAX_DETAIL_FETCHES", c.DefaultMaxDetailFetches)
	c.DefaultMode = getEnv("DEFAULT_MODE", c.DefaultMode)
	c.WorkerConcurrency = getEnvAsInt("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.ArchiveDir = getEnv("ARCHIVE_DIR", c.ArchiveDir)

	c.ChunkSize = getEnvAsInt("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = getEnvAsInt("CHUNK_OVERLAP", c.ChunkOverlap)
	c.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.EmbeddingModel)
	c.CollectionName = getEnv("COLLECTION_NAME", c.CollectionName)
}

// Validate checks the values the research engine depends on.
func (c *Config) Validate() error {
	if _, err := research.ParseMode(c.DefaultMode); err != nil {
		return fmt.Errorf("DEFAULT_MODE: %w", err)
	}
	if c.DefaultMaxIterations < 1 {
		return fmt.Errorf("DEFAULT_MAX_ITERATIONS must be at least 1, got %d", c.DefaultMaxIterations)
	}
	if c.DefaultMaxDetailFetches < 0 {
		return fmt.Errorf("DEFAULT_MAX_DETAIL_FETCHES must not be negative, got %d", c.DefaultMaxDetailFetches)
	}
	switch c.LLMProvider {
	case "google", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	switch c.SearchProvider {
	case "tavily", "arxiv":
	default:
		return fmt.Errorf("unknown SEARCH_PROVIDER %q", c.SearchProvider)
	}
	return nil
}

// ResearchDefaults returns the limits applied to requests that leave them unset.
func (c *Config) ResearchDefaults() research.Defaults {
	mode, _ := research.ParseMode(c.DefaultMode)
	return research.Defaults{
		MaxIterations:    c.DefaultMaxIterations,
		MaxDetailFetches: c.DefaultMaxDetailFetches,
		Mode:             mode,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
