package magiclink

import (
	"sync"
	"time"
)

// UsedLinkStore records consumed link IDs until the underlying tokens would
// have expired anyway, which is all the single-use guarantee needs.
type UsedLinkStore interface {
	// MarkUsed records a link ID as consumed. Returns LinkAlreadyUsedErr if
	// it was consumed before.
	MarkUsed(jti string, expiresAt time.Time) error

	// Purge drops entries whose tokens are past expiry, returning how many
	// were removed
	Purge(now time.Time) int
}

var _ UsedLinkStore = (*InMemoryUsedLinks)(nil)

// InMemoryUsedLinks is a thread-safe in-memory implementation of UsedLinkStore
type InMemoryUsedLinks struct {
	mu    sync.Mutex
	links map[string]time.Time // jti -> token expiry
}

// NewInMemoryUsedLinks creates a new in-memory used-link store
func NewInMemoryUsedLinks() *InMemoryUsedLinks {
	return &InMemoryUsedLinks{
		links: make(map[string]time.Time),
	}
}

func (s *InMemoryUsedLinks) MarkUsed(jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[jti]; ok {
		return LinkAlreadyUsedErr
	}
	s.links[jti] = expiresAt
	return nil
}

func (s *InMemoryUsedLinks) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for jti, expiresAt := range s.links {
		if now.After(expiresAt) {
			delete(s.links, jti)
			removed++
		}
	}
	return removed
}
