package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgVectorRetriever stores chunks in PostgreSQL and ranks them with the
// pgvector `<=>` cosine-distance operator.
type PgVectorRetriever struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPgVectorRetriever(ctx context.Context, databaseURL string, embeddingDim int) (*PgVectorRetriever, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initKnowledgeSchema(ctx, pool, embeddingDim); err != nil {
		pool.Close()
		return nil, err
	}

	return &PgVectorRetriever{pool: pool, dim: embeddingDim}, nil
}

func initKnowledgeSchema(ctx context.Context, pool *pgxpool.Pool, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id BIGSERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, dim),
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init knowledge schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (r *PgVectorRetriever) NearestChunks(ctx context.Context, vector []float32, k int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT content FROM knowledge_chunks ORDER BY embedding <=> $1::vector LIMIT $2`,
		vectorLiteral(vector), k,
	)
	if err != nil {
		return nil, fmt.Errorf("query nearest chunks: %w", err)
	}
	defer rows.Close()

	var chunks []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		chunks = append(chunks, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}
	return chunks, nil
}

func (r *PgVectorRetriever) UpsertChunk(ctx context.Context, content string, vector []float32) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO knowledge_chunks (content, embedding) VALUES ($1, $2::vector)`,
		content, vectorLiteral(vector),
	)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

func (r *PgVectorRetriever) Close() error {
	r.pool.Close()
	return nil
}

// vectorLiteral renders a pgvector input literal like "[0.1,0.2,...]".
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
