package clients

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/goleak"

	"github.com/mikeboe/deep-research/pkg/config"
)

// stubModel streams chunks through the streaming func when one is set.
// With endless set it keeps streaming until the callback refuses a chunk.
type stubModel struct {
	chunks  []string
	endless bool
	err     error

	temperature float64
	prompt      string
}

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	m.temperature = opts.Temperature
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if p, ok := messages[0].Parts[0].(llms.TextContent); ok {
			m.prompt = p.Text
		}
	}
	if m.err != nil {
		return nil, m.err
	}

	if opts.StreamingFunc != nil {
		for i := 0; m.endless || i < len(m.chunks); i++ {
			chunk := "tok"
			if i < len(m.chunks) {
				chunk = m.chunks[i]
			}
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: strings.Join(m.chunks, "")}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestGenerate(t *testing.T) {
	m := &stubModel{chunks: []string{`{"ok":`, ` true}`}}
	g := NewGenerator(m)

	text, err := g.Generate(context.Background(), "plan this", 0.3)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, text)
	assert.Equal(t, 0.3, m.temperature)
	assert.Equal(t, "plan this", m.prompt)

	m.err = errors.New("quota")
	_, err = g.Generate(context.Background(), "plan this", 0.3)
	assert.ErrorContains(t, err, "quota")
}

func TestGenerateStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("yields every fragment in order", func(t *testing.T) {
		g := NewGenerator(&stubModel{chunks: []string{"a", "b", "c"}})
		var got []string
		for chunk, err := range g.GenerateStream(context.Background(), "p", 0.7) {
			require.NoError(t, err)
			got = append(got, chunk)
		}
		assert.Equal(t, []string{"a", "b", "c"}, got)
	})

	t.Run("break cancels the call", func(t *testing.T) {
		g := NewGenerator(&stubModel{endless: true})
		n := 0
		for _, err := range g.GenerateStream(context.Background(), "p", 0.7) {
			require.NoError(t, err)
			n++
			if n == 5 {
				break
			}
		}
		assert.Equal(t, 5, n)
	})

	t.Run("cancelled context ends the stream", func(t *testing.T) {
		g := NewGenerator(&stubModel{endless: true})
		ctx, cancel := context.WithCancel(context.Background())
		var errs []error
		n := 0
		for _, err := range g.GenerateStream(ctx, "p", 0.7) {
			if err != nil {
				errs = append(errs, err)
				continue
			}
			n++
			if n == 2 {
				cancel()
			}
		}
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], context.Canceled)
	})

	t.Run("model error is yielded", func(t *testing.T) {
		g := NewGenerator(&stubModel{err: errors.New("boom")})
		var errs []error
		for _, err := range g.GenerateStream(context.Background(), "p", 0.7) {
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.ErrorContains(t, errs[0], "boom")
	})
}

func TestNewRejectsMissingKeys(t *testing.T) {
	for _, provider := range []string{"google", "openai", "anthropic", "bogus"} {
		t.Run(provider, func(t *testing.T) {
			_, err := New(context.Background(), &config.Config{LLMProvider: provider})
			assert.Error(t, err)
		})
	}
}
