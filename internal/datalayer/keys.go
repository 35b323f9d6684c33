package datalayer

import "strings"

const (
	sessionKeyPrefix = "session:"
	searchKeyPrefix  = "search:"

	// DefaultMaxKeyLength bounds derived cache keys. Operations whose key
	// exceeds the bound bypass the cache entirely rather than risk a
	// backend key-size failure.
	DefaultMaxKeyLength = 512
)

// SessionKey derives the cache key holding a session's chat history.
func SessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// SearchKey derives the cache key for a knowledge query: case-folded,
// trimmed, interior whitespace collapsed to single underscores.
func SearchKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), "_")
	return searchKeyPrefix + normalized
}
