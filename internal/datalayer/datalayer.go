// Package datalayer mediates every read and write between the chat pipeline
// and its three tiers: a TTL-bounded Redis cache, the authoritative session
// store, and the vector knowledge search.
//
// The cache is an accelerator, never a source of truth. Cache transport
// failures are recovered locally (fail open): reads degrade to the store,
// writes are skipped. Store and knowledge failures always propagate.
package datalayer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ent0n29/ragchat/internal/cache"
	"github.com/ent0n29/ragchat/internal/chatstore"
	"github.com/ent0n29/ragchat/internal/observability"
)

// Source reports which tier served a read.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
)

// KnowledgeSearcher is the similarity-search collaborator.
type KnowledgeSearcher interface {
	SearchSimilar(ctx context.Context, query string) (string, error)
}

// Config is immutable after construction.
type Config struct {
	ChatHistoryTTL time.Duration
	KnowledgeTTL   time.Duration
	MaxKeyLength   int
}

// Stats is a snapshot of the cache tier, for operational endpoints.
type Stats struct {
	Available bool  `json:"available"`
	Entries   int64 `json:"entries"`
}

// DataLayer implements the cache-aside orchestration.
type DataLayer struct {
	cfg       Config
	cache     cache.Client
	store     chatstore.Store
	knowledge KnowledgeSearcher
	metrics   *observability.Metrics
}

func New(cfg Config, cacheClient cache.Client, store chatstore.Store, knowledge KnowledgeSearcher, metrics *observability.Metrics) *DataLayer {
	if cfg.ChatHistoryTTL <= 0 {
		cfg.ChatHistoryTTL = time.Hour
	}
	if cfg.KnowledgeTTL <= 0 {
		cfg.KnowledgeTTL = 24 * time.Hour
	}
	if cfg.MaxKeyLength <= 0 {
		cfg.MaxKeyLength = DefaultMaxKeyLength
	}
	return &DataLayer{
		cfg:       cfg,
		cache:     cacheClient,
		store:     store,
		knowledge: knowledge,
		metrics:   metrics,
	}
}

// historySnapshot is the JSON envelope cached under a session key. The same
// shape is written by the create-session pre-warm and the history cache, so
// a hit always deserializes to an ordered message list.
type historySnapshot struct {
	SessionID string              `json:"session_id"`
	Messages  []chatstore.Message `json:"messages"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// GetKnowledgeContext returns the retrieval context for a query and the tier
// that served it. Oversized keys bypass the cache in both directions.
func (d *DataLayer) GetKnowledgeContext(ctx context.Context, query string) (string, Source, error) {
	key := SearchKey(query)
	overBound := len(key) > d.cfg.MaxKeyLength
	if overBound {
		log.Printf("datalayer: skipping cache for oversized search key (len=%d)", len(key))
		d.metrics.CacheOps.WithLabelValues("knowledge", "bypass").Inc()
	} else if d.cache.Available() {
		val, found, err := d.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Printf("datalayer: knowledge cache read failed, treating as miss: %v", err)
			d.metrics.CacheOps.WithLabelValues("knowledge", "error").Inc()
		case found:
			d.metrics.CacheOps.WithLabelValues("knowledge", "hit").Inc()
			return val, SourceCache, nil
		default:
			d.metrics.CacheOps.WithLabelValues("knowledge", "miss").Inc()
		}
	}

	d.metrics.KnowledgeSearches.Inc()
	blob, err := d.knowledge.SearchSimilar(ctx, query)
	if err != nil {
		return "", SourceDatabase, fmt.Errorf("knowledge search: %w", err)
	}

	if !overBound && blob != "" && d.cache.Available() {
		if err := d.cache.SetWithTTL(ctx, key, blob, d.cfg.KnowledgeTTL); err != nil {
			log.Printf("datalayer: knowledge cache write failed: %v", err)
			d.metrics.CacheOps.WithLabelValues("knowledge", "error").Inc()
		}
	}
	return blob, SourceDatabase, nil
}

// GetChatHistory returns a session's full message history, oldest first.
// Returns chatstore.ErrSessionNotFound when the session record is absent,
// distinct from an existing session with no messages.
func (d *DataLayer) GetChatHistory(ctx context.Context, sessionID string) ([]chatstore.Message, error) {
	key := SessionKey(sessionID)
	if d.cache.Available() {
		raw, found, err := d.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Printf("datalayer: history cache read failed, treating as miss: %v", err)
			d.metrics.CacheOps.WithLabelValues("history", "error").Inc()
		case found:
			var snap historySnapshot
			if err := json.Unmarshal([]byte(raw), &snap); err != nil {
				log.Printf("datalayer: corrupt history cache entry for %s, refetching: %v", sessionID, err)
				d.metrics.CacheOps.WithLabelValues("history", "error").Inc()
			} else {
				d.metrics.CacheOps.WithLabelValues("history", "hit").Inc()
				if snap.Messages == nil {
					return []chatstore.Message{}, nil
				}
				return snap.Messages, nil
			}
		default:
			d.metrics.CacheOps.WithLabelValues("history", "miss").Inc()
		}
	}

	messages, err := d.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	if messages == nil {
		messages = []chatstore.Message{}
	}

	d.writeHistorySnapshot(ctx, sessionID, messages, time.Time{})
	return messages, nil
}

// AppendChatMessages persists the drafts in one batch and returns them in
// store-canonical shape (store-assigned ids and timestamps, oldest first).
// An empty input is a no-op that touches neither cache nor store. The cache
// refresh is best-effort: its failure never masks a successful store write.
func (d *DataLayer) AppendChatMessages(ctx context.Context, sessionID string, drafts []chatstore.Draft) ([]chatstore.Message, error) {
	if len(drafts) == 0 {
		return []chatstore.Message{}, nil
	}

	inserted, err := d.store.AppendMessages(ctx, sessionID, drafts)
	if err != nil {
		return nil, fmt.Errorf("append messages: %w", err)
	}

	// Read back the newest rows so the returned shape carries the ids and
	// timestamps the store assigned, not anything client-supplied.
	recent, err := d.store.RecentMessages(ctx, sessionID, int(inserted))
	if err != nil {
		return nil, fmt.Errorf("read back appended messages: %w", err)
	}
	stored := make([]chatstore.Message, len(recent))
	for i, m := range recent {
		stored[len(recent)-1-i] = m
	}

	if d.cache.Available() {
		d.refreshHistoryCache(ctx, sessionID, stored)
	}
	return stored, nil
}

// refreshHistoryCache overwrites the cached history with current history plus
// the freshly stored tail, warming a cold cache as a side effect. Errors are
// logged only.
func (d *DataLayer) refreshHistoryCache(ctx context.Context, sessionID string, stored []chatstore.Message) {
	history, err := d.GetChatHistory(ctx, sessionID)
	if err != nil {
		log.Printf("datalayer: history refresh read failed for %s: %v", sessionID, err)
		return
	}

	// A cold-cache read above already includes the new tail; keep only the
	// strictly older prefix so the concatenation never duplicates messages.
	combined := history
	if len(stored) > 0 {
		firstNewID := stored[0].ID
		cut := len(history)
		for cut > 0 && history[cut-1].ID >= firstNewID {
			cut--
		}
		combined = append(history[:cut:cut], stored...)
	}

	d.writeHistorySnapshot(ctx, sessionID, combined, time.Time{})
}

// CreateSession creates a session in the store and best-effort pre-warms the
// cache with an empty history snapshot.
func (d *DataLayer) CreateSession(ctx context.Context) (string, error) {
	sess, err := d.store.CreateSession(ctx)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	if d.cache.Available() {
		d.writeHistorySnapshot(ctx, sess.ID, []chatstore.Message{}, sess.CreatedAt)
	}
	return sess.ID, nil
}

func (d *DataLayer) writeHistorySnapshot(ctx context.Context, sessionID string, messages []chatstore.Message, createdAt time.Time) {
	if !d.cache.Available() {
		return
	}
	snap := historySnapshot{
		SessionID: sessionID,
		Messages:  messages,
		CreatedAt: createdAt,
		UpdatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		log.Printf("datalayer: marshal history snapshot for %s: %v", sessionID, err)
		return
	}
	if err := d.cache.SetWithTTL(ctx, SessionKey(sessionID), string(raw), d.cfg.ChatHistoryTTL); err != nil {
		log.Printf("datalayer: history cache write failed for %s: %v", sessionID, err)
		d.metrics.CacheOps.WithLabelValues("history", "error").Inc()
	}
}

// ClearCache flushes every cached entry. A no-op while the cache is down.
func (d *DataLayer) ClearCache(ctx context.Context) error {
	if !d.cache.Available() {
		return nil
	}
	if err := d.cache.FlushAll(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	log.Printf("datalayer: cleared all cached entries")
	return nil
}

// CacheStats reports cache connectivity and approximate entry count. It
// never returns an error; a down cache reads as {false, 0}.
func (d *DataLayer) CacheStats(ctx context.Context) Stats {
	if !d.cache.Available() {
		return Stats{}
	}
	n, err := d.cache.Size(ctx)
	if err != nil {
		log.Printf("datalayer: cache size failed: %v", err)
		return Stats{}
	}
	return Stats{Available: true, Entries: n}
}
