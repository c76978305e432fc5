package handshake

import "time"

const (
	// StateTokenBytes is the entropy of a state token. Rendered as hex the
	// token is twice this many characters.
	StateTokenBytes = 24

	// StateTTL is the absolute lifetime of a handshake. The store filters on
	// it for every read, independently of any client-side timer.
	StateTTL = 3 * time.Minute
)

// Handshake is the short-lived record coordinating a login approved
// out-of-band. It is created by IssueState, flipped to completed exactly once
// by CompleteBridge, and deleted either when ResolveSession hands out a magic
// link or when the client gives up and cancels it.
type Handshake struct {
	State            string    // Opaque random token, primary lookup key
	CreatedAt        time.Time // When the handshake was issued
	ExpiresAt        time.Time // CreatedAt + StateTTL, enforced on every read
	InitiatingOrigin string    // URL origin the browser started from, used for the post-login redirect
	Completed        bool      // Monotonic false -> true, set by the bridge completer
	UserID           string    // Resolved user, set together with Completed
}

// Expired reports whether the handshake is past its lifetime at the given instant.
func (h *Handshake) Expired(now time.Time) bool {
	return now.After(h.ExpiresAt)
}
