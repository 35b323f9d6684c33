// Package knowledge holds the vector-similarity side of retrieval: document
// chunks with embeddings, nearest-neighbor search and ingestion.
package knowledge

import (
	"context"
	"fmt"
	"strings"
)

const (
	// Joined between retrieved chunks in the context blob handed to the LLM.
	chunkSeparator = "\n---\n"

	// Target chunk size in characters for ingestion.
	defaultChunkSize = 300
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever answers nearest-neighbor queries over stored chunks and accepts
// new chunks at ingestion time.
type Retriever interface {
	NearestChunks(ctx context.Context, vector []float32, k int) ([]string, error)
	UpsertChunk(ctx context.Context, content string, vector []float32) error
	Close() error
}

// Service combines an embedder and a retriever into the search surface the
// data layer consumes.
type Service struct {
	embedder  Embedder
	retriever Retriever
	topK      int
}

func NewService(embedder Embedder, retriever Retriever, topK int) *Service {
	if topK <= 0 {
		topK = 3
	}
	return &Service{embedder: embedder, retriever: retriever, topK: topK}
}

// SearchSimilar embeds the query, fetches the nearest chunks and joins them
// into one context string. Returns "" when nothing matches.
func (s *Service) SearchSimilar(ctx context.Context, query string) (string, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	chunks, err := s.retriever.NearestChunks(ctx, vector, s.topK)
	if err != nil {
		return "", fmt.Errorf("similarity search: %w", err)
	}
	if len(chunks) == 0 {
		return "", nil
	}
	return strings.Join(chunks, chunkSeparator), nil
}

// IngestDocument splits a document into sentence-aligned chunks, embeds each
// and stores them. Returns the number of chunks ingested.
func (s *Service) IngestDocument(ctx context.Context, fullText string) (int, error) {
	chunks := chunkText(fullText, defaultChunkSize)
	for _, chunk := range chunks {
		vector, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("embed chunk: %w", err)
		}
		if err := s.retriever.UpsertChunk(ctx, chunk, vector); err != nil {
			return 0, fmt.Errorf("store chunk: %w", err)
		}
	}
	return len(chunks), nil
}

func (s *Service) Close() error {
	return s.retriever.Close()
}

// chunkText splits text on sentence boundaries, packing sentences into chunks
// of at most maxSize characters.
func chunkText(text string, maxSize int) []string {
	var chunks []string
	var current string

	for _, sentence := range strings.Split(text, ". ") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if len(current)+len(sentence) < maxSize {
			current += sentence + ". "
			continue
		}
		if current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
		}
		current = sentence + ". "
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return chunks
}
