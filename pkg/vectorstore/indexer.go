package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// Store is the subset of PGVectorStore the indexer needs.
type Store interface {
	AddDocuments(ctx context.Context, docs []Document) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, url string) ([]SimilaritySearchResult, error)
	GetContentByURL(ctx context.Context, url string) ([]Document, error)
}

type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// SourceIndexer chunks the sources of finished runs and makes them
// searchable by meaning.
type SourceIndexer struct {
	store    Store
	embedder Embedder
	splitter *splitter.TextSplitter
}

func NewSourceIndexer(store Store, embedder Embedder, chunkSize, chunkOverlap int) *SourceIndexer {
	return &SourceIndexer{
		store:    store,
		embedder: embedder,
		splitter: splitter.NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap),
	}
}

// IndexSources stores every source's full text, or its summary when no text
// was kept, and returns the number of chunks written.
func (ix *SourceIndexer) IndexSources(ctx context.Context, jobID string, sources []research.ProcessedSource) (int, error) {
	var docs []Document
	for _, s := range sources {
		text := s.RawContent
		if strings.TrimSpace(text) == "" {
			text = s.Summary
		}
		for i, chunk := range ix.splitter.SplitNonEmpty(text) {
			docs = append(docs, Document{
				Content: chunk,
				Metadata: SourceMetadata{
					JobID:    jobID,
					SourceID: s.ID,
					Title:    s.Title,
					URL:      s.URL,
					Query:    s.Query,
					Chunk:    i,
					Score:    s.Relevance,
				},
			})
		}
	}
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := ix.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed source chunks: %w", err)
	}
	if len(vectors) != len(docs) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(docs))
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	if err := ix.store.AddDocuments(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Search embeds query and returns the closest chunks.
func (ix *SourceIndexer) Search(ctx context.Context, query string, topK int, url string) ([]SimilaritySearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	vec, err := ix.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return ix.store.SimilaritySearch(ctx, vec, topK, url)
}

// SourceText reassembles the indexed text of url from its chunks.
func (ix *SourceIndexer) SourceText(ctx context.Context, url string) (string, []Document, error) {
	docs, err := ix.store.GetContentByURL(ctx, url)
	if err != nil {
		return "", nil, err
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, "\n"), docs, nil
}
