package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a session ID has no live session.
var ErrNotFound = errors.New("session not found")

// Store persists sessions keyed by their opaque ID. Implementations must be
// safe for concurrent use.
type Store interface {
	// GetOrCreate loads the session for id, creating a fresh one (with a new
	// ID) when id is empty or unknown. The second return value reports
	// whether a new session was created.
	GetOrCreate(ctx context.Context, id string) (*Session, bool, error)

	// Get loads an existing session or returns ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Save persists the session's current state.
	Save(ctx context.Context, s *Session) error

	// Destroy removes the session. Missing sessions are not an error.
	Destroy(ctx context.Context, id string) error

	// CleanupExpired removes sessions idle past the store's TTL and returns
	// how many were removed.
	CleanupExpired(ctx context.Context) (int, error)

	// Close releases any backend resources.
	Close() error
}
