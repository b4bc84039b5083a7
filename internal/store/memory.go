// Package store provides the keyed session stores. Stores persist sessions
// opaquely; all interpretation and mutation happens in the engagement engine
// under its per-key critical section.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"honeypot/internal/domain"
	"honeypot/internal/metrics"
)

const defaultTTL = 2 * time.Hour

// MemoryStore is the default in-process store: a keyed map with inactivity
// eviction. Closed sessions are evicted eagerly on the sweep; everything is
// lost on restart, which is acceptable when no report is pending.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	ttl      time.Duration
	keyLocks *KeyLocks
	logger   *slog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemoryStore(ttl time.Duration, keyLocks *KeyLocks, logger *slog.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if keyLocks == nil {
		keyLocks = NewKeyLocks()
	}
	s := &MemoryStore{
		sessions: make(map[string]*domain.Session),
		ttl:      ttl,
		keyLocks: keyLocks,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// sweepLoop evicts inactive and closed sessions periodically so an abandoned
// conversation does not pin memory forever.
func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		expired := now.Sub(sess.UpdatedAt) > s.ttl
		if sess.Status == domain.StatusClosed || expired {
			// Never evict a session still awaiting report delivery on a
			// TTL basis alone unless it has been idle for a full TTL.
			if sess.Status == domain.StatusConcluding && !expired {
				continue
			}
			delete(s.sessions, id)
			s.keyLocks.Forget(id)
			// Closed sessions were already taken off the gauge on delivery.
			if sess.Status != domain.StatusClosed {
				metrics.ActiveSessions.Dec()
			}
			s.logger.Debug("session evicted", "session", id, "status", sess.Status)
		}
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return cloneSession(sess)
}

func (s *MemoryStore) Put(ctx context.Context, sess *domain.Session) error {
	cp, err := cloneSession(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[sess.ID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.keyLocks.Forget(id)
	return nil
}

func (s *MemoryStore) Concluding(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, sess := range s.sessions {
		if sess.Status == domain.StatusConcluding {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// cloneSession deep-copies via JSON so callers never share mutable state
// with the store's copy.
func cloneSession(sess *domain.Session) (*domain.Session, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	var cp domain.Session
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
