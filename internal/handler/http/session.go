package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/ordering"
)

const (
	SessionCookieName = "qrmenu_session"
	sessionCookieTTL  = 365 * 24 * time.Hour
)

// SessionProvider resolves the ordering session of one browser profile.
type SessionProvider interface {
	Session(id uuid.UUID) (*ordering.Session, error)
}

type sessionKey struct{}

// withSession attaches the caller's session, issuing a new session cookie
// when none or an invalid one was sent.
func withSession(sessions SessionProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.Nil
			if c, err := r.Cookie(SessionCookieName); err == nil {
				if parsed, err := uuid.FromString(c.Value); err == nil {
					id = parsed
				}
			}

			if id == uuid.Nil {
				fresh, err := uuid.NewV4()
				if err != nil {
					log.Error().Err(err).Msg("handler: failed to generate session id")
					respondWithError(w, http.StatusInternalServerError, "Failed to start session")
					return
				}
				id = fresh
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    id.String(),
					Path:     "/",
					MaxAge:   int(sessionCookieTTL.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			s, err := sessions.Session(id)
			if err != nil {
				log.Error().Err(err).Stringer("session_id", id).Msg("handler: failed to open session")
				respondWithError(w, mapErrorToStatusCode(err), "Failed to open session")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
		})
	}
}

func sessionFrom(r *http.Request) *ordering.Session {
	s, _ := r.Context().Value(sessionKey{}).(*ordering.Session)
	return s
}
