package handshake

import "time"

// Repo defines the interface for handshake storage operations.
// Handshakes are short-lived flow state; every read takes the caller's notion
// of now and must treat records past ExpiresAt as absent.
type Repo interface {
	// Insert stores a new handshake. Returns DuplicateStateErr if a
	// non-expired record with the same state token already exists.
	Insert(h *Handshake) error

	// Get retrieves a handshake by state token, filtering out expired
	// records. Returns InvalidOrExpiredStateErr when absent or expired.
	Get(state string, now time.Time) (*Handshake, error)

	// MarkCompleted conditionally flips a pending handshake to completed and
	// binds the resolved user, as a single compare-and-set: it fails with
	// StateAlreadyUsedErr when the record is already completed and with
	// InvalidOrExpiredStateErr when absent or expired. At most one caller can
	// ever succeed for a given state.
	MarkCompleted(state, userID string, now time.Time) error

	// Delete removes a handshake unconditionally
	Delete(state string) error

	// DeleteIfPending removes a handshake only while it is not completed.
	// Deleting an absent state is not an error.
	DeleteIfPending(state string) error

	// DeleteExpired reaps records past their lifetime, returning how many
	// were removed
	DeleteExpired(now time.Time) (int, error)
}
