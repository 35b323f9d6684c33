package chatstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]Message
	nextID   int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (s *InMemoryStore) CreateSession(_ context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	sess := Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	s.sessions[sess.ID] = &sess
	return sess, nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}
	arr := s.messages[sessionID]
	out := make([]Message, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryStore) AppendMessages(_ context.Context, sessionID string, drafts []Draft) (int64, error) {
	if len(drafts) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}
	now := time.Now().UTC()
	for i, d := range drafts {
		s.nextID++
		s.messages[sessionID] = append(s.messages[sessionID], Message{
			ID:      s.nextID,
			Role:    d.Role,
			Content: d.Content,
			// Spread timestamps so ordering stays strict within a batch.
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}
	sess.UpdatedAt = now
	return int64(len(drafts)), nil
}

func (s *InMemoryStore) RecentMessages(_ context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[sessionID]
	if limit <= 0 || len(arr) == 0 {
		return nil, nil
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Message, 0, limit)
	for i := len(arr) - 1; i >= len(arr)-limit; i-- {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
