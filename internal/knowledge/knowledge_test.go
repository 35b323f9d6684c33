package knowledge

import (
	"context"
	"strings"
	"testing"
)

// stubEmbedder hashes characters into a tiny deterministic vector.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 8)
	for i, r := range text {
		v[i%8] += float32(r % 31)
	}
	return v, nil
}

func TestChunkTextPacksSentences(t *testing.T) {
	text := "First sentence here. Second sentence follows. Third one is a bit longer than the others. Fourth closes it"
	chunks := chunkText(text, 60)

	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want at least 2", len(chunks))
	}
	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Fatalf("chunk %d is blank", i)
		}
		if len(c) > 80 {
			t.Fatalf("chunk %d too large (%d chars): %q", i, len(c), c)
		}
	}
	joined := strings.Join(chunks, " ")
	for _, word := range []string{"First", "Second", "Third", "Fourth"} {
		if !strings.Contains(joined, word) {
			t.Fatalf("chunks dropped content containing %q", word)
		}
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	if chunks := chunkText("", 100); len(chunks) != 0 {
		t.Fatalf("chunks of empty input = %v, want none", chunks)
	}
}

func TestServiceIngestAndSearch(t *testing.T) {
	svc := NewService(stubEmbedder{}, NewInMemoryRetriever(), 2)
	ctx := context.Background()

	n, err := svc.IngestDocument(ctx, "Shipping takes five days. Refunds are processed weekly. Support answers within a day.")
	if err != nil {
		t.Fatalf("IngestDocument error = %v", err)
	}
	if n == 0 {
		t.Fatalf("ingested chunks = 0, want > 0")
	}

	blob, err := svc.SearchSimilar(ctx, "how long does shipping take")
	if err != nil {
		t.Fatalf("SearchSimilar error = %v", err)
	}
	if blob == "" {
		t.Fatalf("context is empty after ingestion")
	}
}

func TestServiceSearchEmptyStore(t *testing.T) {
	svc := NewService(stubEmbedder{}, NewInMemoryRetriever(), 3)

	blob, err := svc.SearchSimilar(context.Background(), "anything")
	if err != nil {
		t.Fatalf("SearchSimilar error = %v", err)
	}
	if blob != "" {
		t.Fatalf("context = %q, want empty string for no matches", blob)
	}
}

func TestServiceJoinsChunksWithSeparator(t *testing.T) {
	retriever := NewInMemoryRetriever()
	svc := NewService(stubEmbedder{}, retriever, 2)
	ctx := context.Background()

	for _, content := range []string{"alpha", "beta"} {
		vec, _ := stubEmbedder{}.Embed(ctx, content)
		if err := retriever.UpsertChunk(ctx, content, vec); err != nil {
			t.Fatalf("UpsertChunk error = %v", err)
		}
	}

	blob, err := svc.SearchSimilar(ctx, "alpha")
	if err != nil {
		t.Fatalf("SearchSimilar error = %v", err)
	}
	if !strings.Contains(blob, chunkSeparator) {
		t.Fatalf("context %q missing separator %q", blob, chunkSeparator)
	}
}
