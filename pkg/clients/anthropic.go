package clients

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms/anthropic"
)

const (
	Claude4Sonnet ModelType = "claude-sonnet-4-20250514"
	Claude4Opus   ModelType = "claude-opus-4-20250514"
	Claude35Haiku ModelType = "claude-3-5-haiku-20241022"
)

func Anthropic(apiKey string, model ModelType) (*anthropic.LLM, error) {
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not set")
	}

	var modelName string
	switch model {
	case "", Claude4Sonnet:
		modelName = string(Claude4Sonnet)
	case Claude4Opus, Claude35Haiku:
		modelName = string(model)
	default:
		return nil, fmt.Errorf("invalid model type: %s", model)
	}

	llm, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(modelName))
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic client: %w", err)
	}
	return llm, nil
}
