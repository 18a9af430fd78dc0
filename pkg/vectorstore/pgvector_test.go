package vectorstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/research"
)

func TestIsValidTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Valid standard", "research_sources", true},
		{"Valid with numbers", "collection123", true},
		{"Valid short", "a", true},
		{"Valid max length", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_", true}, // 63 chars
		{"Invalid start with number", "1collection", false},
		{"Invalid special chars", "collection-name", false},
		{"Invalid space", "collection name", false},
		{"Invalid SQL injection", "users; DROP TABLE embeddings", false},
		{"Invalid empty", "", false},
		{"Invalid too long", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789__", false}, // 64 chars
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidTableName(tt.input); got != tt.expected {
				t.Errorf("isValidTableName(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

type memStore struct {
	docs     []Document
	lastTopK int
	lastURL  string
}

func (m *memStore) AddDocuments(_ context.Context, docs []Document) error {
	m.docs = append(m.docs, docs...)
	return nil
}

func (m *memStore) SimilaritySearch(_ context.Context, _ []float32, topK int, url string) ([]SimilaritySearchResult, error) {
	m.lastTopK, m.lastURL = topK, url
	var out []SimilaritySearchResult
	for _, d := range m.docs {
		if url == "" || d.Metadata.URL == url {
			out = append(out, SimilaritySearchResult{Document: d, Score: 0.9})
		}
	}
	return out, nil
}

func (m *memStore) GetContentByURL(_ context.Context, url string) ([]Document, error) {
	var out []Document
	for _, d := range m.docs {
		if d.Metadata.URL == url {
			out = append(out, d)
		}
	}
	return out, nil
}

type lenEmbedder struct{ err error }

func (e lenEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text))}, nil
}

func (e lenEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func TestIndexSources(t *testing.T) {
	store := &memStore{}
	ix := NewSourceIndexer(store, lenEmbedder{}, 100, 0)

	sources := []research.ProcessedSource{
		{ID: "src_1", Title: "Long", URL: "https://long", RawContent: strings.Repeat("word ", 60), Relevance: 0.8},
		{ID: "src_2", Title: "Short", URL: "https://short", Summary: "only a summary", Relevance: 0.6},
		{ID: "src_3", Title: "Empty", URL: "https://empty"},
	}

	n, err := ix.IndexSources(context.Background(), "job-1", sources)
	require.NoError(t, err)
	assert.Equal(t, len(store.docs), n)
	assert.Greater(t, n, 2, "long content is split")

	last := store.docs[n-1]
	assert.Equal(t, "only a summary", last.Content)
	assert.Equal(t, "src_2", last.Metadata.SourceID)
	assert.Equal(t, "job-1", last.Metadata.JobID)
	assert.Equal(t, 0, last.Metadata.Chunk)
	for _, d := range store.docs {
		assert.NotEmpty(t, d.Embedding)
		assert.NotEqual(t, "src_3", d.Metadata.SourceID)
	}

	results, err := ix.Search(context.Background(), "summary", 0, "https://short")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 5, store.lastTopK)
	assert.Equal(t, "https://short", store.lastURL)

	text, docs, err := ix.SourceText(context.Background(), "https://long")
	require.NoError(t, err)
	assert.Len(t, docs, n-1)
	assert.Equal(t, strings.Count(strings.Repeat("word ", 60), "word"), strings.Count(text, "word"))
}

func TestIndexSourcesEmbedFailure(t *testing.T) {
	store := &memStore{}
	ix := NewSourceIndexer(store, lenEmbedder{err: errors.New("quota")}, 100, 0)

	_, err := ix.IndexSources(context.Background(), "job-1", []research.ProcessedSource{{ID: "src_1", Summary: "s"}})
	assert.ErrorContains(t, err, "quota")
	assert.Empty(t, store.docs)
}
