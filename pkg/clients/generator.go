package clients

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/config"
)

var errEmptyResponse = errors.New("empty response from model")

// Generator adapts a langchaingo model to the research engine's text
// generation interface.
type Generator struct {
	model llms.Model
}

func NewGenerator(model llms.Model) *Generator {
	return &Generator{model: model}
}

// New builds the generator for the configured provider.
func New(ctx context.Context, cfg *config.Config) (*Generator, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.LLMProvider {
	case "google":
		model, err = GoogleAi(ctx, cfg.GoogleApiKey, ModelType(cfg.ReasoningModel))
	case "openai":
		model, err = OpenAI(cfg.OpenAIApiKey, cfg.OpenAIBaseURL, cfg.ReasoningModel)
	case "anthropic":
		model, err = Anthropic(cfg.AnthropicApiKey, ModelType(cfg.ReasoningModel))
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	return NewGenerator(model), nil
}

func userMessage(prompt string) []llms.MessageContent {
	return []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
}

func (g *Generator) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	resp, err := g.model.GenerateContent(ctx, userMessage(prompt), llms.WithTemperature(temperature))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// GenerateStream runs the model's streaming call on its own goroutine and
// hands fragments to the consumer one at a time. When the consumer stops,
// the call's context is cancelled and the goroutine drains out.
func (g *Generator) GenerateStream(ctx context.Context, prompt string, temperature float64) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks := make(chan string)
		done := make(chan error, 1)
		go func() {
			defer close(chunks)
			_, err := g.model.GenerateContent(ctx, userMessage(prompt),
				llms.WithTemperature(temperature),
				llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
					select {
					case chunks <- string(chunk):
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				}))
			done <- err
		}()

		for chunk := range chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if err := <-done; err != nil {
			yield("", fmt.Errorf("streaming generation failed: %w", err))
		}
	}
}
