package server

import (
	"net/http"
	"time"

	"github.com/dkozyrev/tg-auth-bridge/magiclink"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const sessionCookieAge = 24 * time.Hour

// VerifyMagicLinkHandler consumes a magic link: it burns the token, sets a
// session cookie for the resolved user, and sends the browser to the
// destination captured when the handshake was issued.
func (s *Server) VerifyMagicLinkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawToken := r.URL.Query().Get("token")
		if rawToken == "" {
			http.Error(w, "Missing token parameter", http.StatusBadRequest)
			return
		}

		claims, err := s.links.Verify(rawToken)
		if err != nil {
			if errors.Is(err, magiclink.LinkAlreadyUsedErr) {
				http.Error(w, "This link has already been used", http.StatusUnauthorized)
				return
			}
			http.Error(w, "This link is invalid or has expired", http.StatusUnauthorized)
			return
		}

		sessionToken, err := s.links.SessionToken(claims.UserID, sessionCookieAge)
		if err != nil {
			log.Error().Err(err).Msg("failed to mint session token")
			http.Error(w, "Failed to establish session", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "session_token",
			Value:    sessionToken,
			Path:     "/",
			MaxAge:   int(sessionCookieAge.Seconds()),
			HttpOnly: true,
			Secure:   s.env == "PROD",
			SameSite: http.SameSiteLaxMode,
		})

		redirectTo := claims.RedirectTo
		if redirectTo == "" {
			redirectTo = "/"
		}
		http.Redirect(w, r, redirectTo, http.StatusSeeOther)
	}
}
