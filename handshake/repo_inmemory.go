package handshake

import (
	"sync"
	"time"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu         sync.RWMutex
	handshakes map[string]*Handshake
}

// NewInMemoryRepo creates a new in-memory handshake repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		handshakes: make(map[string]*Handshake),
	}
}

// Insert stores a new handshake, rejecting duplicate state tokens
func (r *InMemoryRepo) Insert(h *Handshake) error {
	if h == nil || h.State == "" {
		return InvalidOrExpiredStateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.handshakes[h.State]; ok && !existing.Expired(h.CreatedAt) {
		return DuplicateStateErr
	}

	r.handshakes[h.State] = copyHandshake(h)
	return nil
}

// Get retrieves a non-expired handshake by state token
func (r *InMemoryRepo) Get(state string, now time.Time) (*Handshake, error) {
	if state == "" {
		return nil, InvalidOrExpiredStateErr
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handshakes[state]
	if !ok || h.Expired(now) {
		return nil, InvalidOrExpiredStateErr
	}

	return copyHandshake(h), nil
}

// MarkCompleted is the compare-and-set step of the bridge: the existence,
// expiry and not-yet-completed checks happen under the same lock as the
// update, so two racing completions cannot both succeed.
func (r *InMemoryRepo) MarkCompleted(state, userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handshakes[state]
	if !ok || h.Expired(now) {
		return InvalidOrExpiredStateErr
	}
	if h.Completed {
		return StateAlreadyUsedErr
	}

	h.Completed = true
	h.UserID = userID
	return nil
}

// Delete removes a handshake
func (r *InMemoryRepo) Delete(state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handshakes, state)
	return nil
}

// DeleteIfPending removes a handshake only while it has not been completed
func (r *InMemoryRepo) DeleteIfPending(state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handshakes[state]
	if !ok || h.Completed {
		return nil
	}

	delete(r.handshakes, state)
	return nil
}

// DeleteExpired reaps records past their lifetime
func (r *InMemoryRepo) DeleteExpired(now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for state, h := range r.handshakes {
		if h.Expired(now) {
			delete(r.handshakes, state)
			removed++
		}
	}
	return removed, nil
}

// copyHandshake returns a copy to prevent external modifications
func copyHandshake(h *Handshake) *Handshake {
	c := *h
	return &c
}
