package poller

import "context"

// IssuedState is the server's answer to starting a handshake.
type IssuedState struct {
	State    string // Token to poll with
	DeepLink string // Hand-off target to show the user
}

// SessionStatus is the server's answer to a poll.
type SessionStatus struct {
	Completed bool
	MagicLink string
	UserID    string
}

// API is the bridge surface the poller drives. Implemented over HTTP by
// Client; fakes stand in for it in tests.
type API interface {
	// IssueState starts a handshake for the given web origin
	IssueState(ctx context.Context, origin string) (*IssuedState, error)

	// ResolveSession polls a handshake. A pending handshake returns
	// Completed=false with no error.
	ResolveSession(ctx context.Context, state string) (*SessionStatus, error)

	// CancelState requests best-effort cleanup of a pending handshake
	CancelState(ctx context.Context, state string) error
}
