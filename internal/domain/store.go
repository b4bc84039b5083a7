package domain

import "context"

// SessionStore provides keyed lookup and persistence for sessions. Stores
// never interpret session contents; all mutation happens under the engine's
// per-key critical section.
type SessionStore interface {
	// Get returns the session for id, or nil (no error) when unseen.
	Get(ctx context.Context, id string) (*Session, error)
	// Put persists the session, creating or replacing it.
	Put(ctx context.Context, s *Session) error
	// Delete evicts the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// Concluding lists IDs of sessions awaiting report delivery, for the
	// dispatcher's retry tick.
	Concluding(ctx context.Context) ([]string, error)
	Close() error
}
