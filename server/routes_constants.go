package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Handshake Routes
	RouteAuthState       = "/auth/state"        // Issue a new handshake state
	RouteAuthStateDelete = "/auth/state/delete" // Client cleanup of a pending handshake
	RouteAuthPlatform    = "/auth/platform"     // Bot completion callback
	RouteAuthSession     = "/auth/session"      // Poll for completion / magic link

	// Magic Link Routes
	RouteAuthVerify = "/auth/verify" // Consume a magic link and establish a session
)
