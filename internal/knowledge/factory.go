package knowledge

import (
	"context"
	"strings"
)

// RetrieverConfig selects and configures a retriever backend.
type RetrieverConfig struct {
	DatabaseURL  string
	EmbeddingDim int
	Qdrant       QdrantConfig
}

// NewRetriever picks a backend: Qdrant when a URL is configured, otherwise
// pgvector when a database is configured, otherwise in-memory.
func NewRetriever(ctx context.Context, cfg RetrieverConfig) (Retriever, error) {
	if strings.TrimSpace(cfg.Qdrant.URL) != "" {
		return NewQdrantRetriever(cfg.Qdrant)
	}
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		dim := cfg.EmbeddingDim
		if dim <= 0 {
			dim = 1536
		}
		return NewPgVectorRetriever(ctx, cfg.DatabaseURL, dim)
	}
	return NewInMemoryRetriever(), nil
}
