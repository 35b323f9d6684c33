package knowledge

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL            string
	APIKey         string
	CollectionName string
}

// QdrantRetriever stores and searches chunks in a Qdrant collection. The
// chunk text lives in the point payload under "content".
type QdrantRetriever struct {
	client         *qdrant.Client
	collectionName string
}

func NewQdrantRetriever(cfg QdrantConfig) (*QdrantRetriever, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}

	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &QdrantRetriever{client: client, collectionName: cfg.CollectionName}, nil
}

func (r *QdrantRetriever) NearestChunks(ctx context.Context, vector []float32, k int) ([]string, error) {
	limit := uint64(k)
	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	chunks := make([]string, 0, len(points))
	for _, point := range points {
		if point.Payload == nil {
			continue
		}
		if v, ok := point.Payload["content"]; ok {
			if content := v.GetStringValue(); content != "" {
				chunks = append(chunks, content)
			}
		}
	}
	return chunks, nil
}

func (r *QdrantRetriever) UpsertChunk(ctx context.Context, content string, vector []float32) error {
	_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(uuid.NewString()),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{"content": content}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (r *QdrantRetriever) Close() error {
	return r.client.Close()
}
