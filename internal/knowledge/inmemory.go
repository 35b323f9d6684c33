package knowledge

import (
	"context"
	"math"
	"sort"
	"sync"
)

// InMemoryRetriever keeps chunks in process and ranks them by cosine
// similarity. For local/dev use.
type InMemoryRetriever struct {
	mu     sync.RWMutex
	chunks []storedChunk
}

type storedChunk struct {
	content string
	vector  []float32
}

func NewInMemoryRetriever() *InMemoryRetriever {
	return &InMemoryRetriever{}
}

func (r *InMemoryRetriever) NearestChunks(_ context.Context, vector []float32, k int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		content string
		score   float64
	}
	ranked := make([]scored, 0, len(r.chunks))
	for _, c := range r.chunks {
		ranked = append(ranked, scored{content: c.content, score: cosine(vector, c.vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, ranked[i].content)
	}
	return out, nil
}

func (r *InMemoryRetriever) UpsertChunk(_ context.Context, content string, vector []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := make([]float32, len(vector))
	copy(v, vector)
	r.chunks = append(r.chunks, storedChunk{content: content, vector: v})
	return nil
}

func (r *InMemoryRetriever) Close() error { return nil }

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
