package chatstore

import (
	"context"
	"errors"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser Role = "USER"
	RoleBot  Role = "BOT"
)

// ErrSessionNotFound is returned when a session id has no record in the store.
// An existing session with zero messages is not an error.
var ErrSessionNotFound = errors.New("session not found")

// Session is one conversation. Timestamps are store-assigned.
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single stored conversational turn. The id is assigned by the
// store and is monotonic within a session.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft is a message as submitted by a caller, before the store assigns an
// id and timestamp.
type Draft struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store persists sessions and their ordered messages. The store is the source
// of truth; callers layering caches on top must treat it as authoritative.
type Store interface {
	// CreateSession inserts a new session record and returns it.
	CreateSession(ctx context.Context) (Session, error)

	// ListMessages returns the full history for a session ordered by creation
	// time ascending. Returns ErrSessionNotFound when the session record is
	// absent, and an empty slice for an existing session with no messages.
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)

	// AppendMessages inserts the drafts in one batch and returns the inserted
	// count. Returns ErrSessionNotFound when the session record is absent.
	AppendMessages(ctx context.Context, sessionID string, drafts []Draft) (int64, error)

	// RecentMessages returns up to limit messages for a session ordered by
	// creation time descending (newest first).
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)

	Close() error
}
