package server

import (
	"net/http"

	"github.com/dkozyrev/tg-auth-bridge/handshake"
	"github.com/dkozyrev/tg-auth-bridge/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// IssueStateHandler starts a handshake for the calling web origin and returns
// the state token plus the Telegram deep link the client should display.
func (s *Server) IssueStateHandler() http.HandlerFunc {
	type request struct {
		InitiatingHostOrigin string `json:"initiating_host_origin"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSONBody(r, &req); err != nil || req.InitiatingHostOrigin == "" {
			writeError(w, http.StatusBadRequest, "Missing initiatingHostOrigin parameter")
			return
		}

		issued, err := s.bridge.IssueState(req.InitiatingHostOrigin)
		if err != nil {
			if errors.Is(err, handshake.MissingOriginErr) {
				writeError(w, http.StatusBadRequest, "Missing initiatingHostOrigin parameter")
				return
			}
			log.Error().Err(err).Msg("failed to issue auth state")
			writeError(w, http.StatusInternalServerError, "Failed to store state")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"state":        issued.State,
			"redirect_url": issued.DeepLink,
		})
	}
}

// CompletePlatformAuthHandler is the bot's callback once a human approves the
// login in chat. It is the only trusted entry point that can complete a
// handshake, guarded by the pre-shared webhook secret.
func (s *Server) CompletePlatformAuthHandler() http.HandlerFunc {
	type request struct {
		State         string `json:"state"`
		WebhookSecret string `json:"webhook_secret"`
		users.TelegramIdentity
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSONBody(r, &req); err != nil || req.State == "" || req.TelegramIdentity.UserID == 0 {
			writeError(w, http.StatusBadRequest, "Missing state or telegram_user_id parameter")
			return
		}

		result, err := s.bridge.CompleteBridge(req.State, req.TelegramIdentity, req.WebhookSecret)
		if err != nil {
			switch {
			case errors.Is(err, handshake.BadWebhookSecretErr):
				writeError(w, http.StatusUnauthorized, "Unauthorized")
			case errors.Is(err, handshake.InvalidOrExpiredStateErr):
				writeError(w, http.StatusBadRequest, "Invalid or expired state")
			case errors.Is(err, handshake.StateAlreadyUsedErr):
				writeError(w, http.StatusBadRequest, "State already used")
			default:
				log.Error().Err(err).Msg("failed to complete platform auth")
				writeError(w, http.StatusInternalServerError, "Failed to process authentication")
			}
			return
		}

		message := "User authenticated"
		if result.NewUser {
			message = "User created and authenticated"
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": message,
			"user_id": result.UserID,
		})
	}
}

// ResolveSessionHandler is polled by the client. Pending handshakes answer
// 202 with no side effects; a completed handshake answers exactly once with
// the magic link, after which the state is gone and polls get 401.
func (s *Server) ResolveSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		if state == "" {
			writeError(w, http.StatusBadRequest, "Missing state parameter")
			return
		}

		status, err := s.bridge.ResolveSession(state)
		if err != nil {
			if errors.Is(err, handshake.InvalidOrExpiredStateErr) {
				writeError(w, http.StatusUnauthorized, "Invalid or expired state")
				return
			}
			log.Error().Err(err).Msg("failed to resolve auth session")
			writeError(w, http.StatusInternalServerError, "Failed to check auth status")
			return
		}

		if !status.Completed {
			writeJSON(w, http.StatusAccepted, map[string]any{
				"success":   true,
				"completed": false,
				"message":   "Authentication in progress",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"completed":  true,
			"magic_link": status.MagicLink,
			"user_id":    status.UserID,
		})
	}
}

// DeleteStateHandler is the client's best-effort cleanup when it times out.
// Only pending handshakes are removed; a completed one stays for the resolver.
func (s *Server) DeleteStateHandler() http.HandlerFunc {
	type request struct {
		State string `json:"state"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSONBody(r, &req); err != nil || req.State == "" {
			writeError(w, http.StatusBadRequest, "Missing state parameter")
			return
		}

		if err := s.bridge.CancelPending(req.State); err != nil {
			log.Error().Err(err).Msg("failed to delete auth state")
			writeError(w, http.StatusInternalServerError, "Failed to delete auth state")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Auth state deleted successfully",
		})
	}
}
