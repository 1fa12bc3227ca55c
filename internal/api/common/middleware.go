package common

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/embucket/embucket/internal/config"
)

// AnonymousCaller is the caller id used when no auth token is presented
// and the process is running in anonymous mode (spec §1's "cookie and
// JWT handling beyond an opaque authenticated caller" is out of scope,
// so anonymous access has no roles/permissions to check).
const AnonymousCaller = "anonymous"

// TokenValidator is the one thing WithAuth needs from
// internal/api/auth.Service — kept as a narrow interface here so this
// package doesn't import auth (auth imports common for Route).
type TokenValidator interface {
	ValidateToken(tokenString string) (callerID string, err error)
}

// WithAuth resolves the request's caller from a session cookie or a
// Bearer JWT and stores it under CallerContextKey. With no
// cfg.Auth.JWTSecret configured, every request is treated as the
// anonymous caller — there is no credential exchange to fail.
func WithAuth(validator TokenValidator, cfg *config.Config) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if cfg.Auth.JWTSecret == "" {
				ctx := context.WithValue(r.Context(), CallerContextKey, AnonymousCaller)
				next(w, r.WithContext(ctx))
				return
			}

			token := bearerToken(r)
			if token == "" {
				if c, err := r.Cookie("embucket_session"); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			caller, err := validator.ValidateToken(token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected auth token")
				RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), CallerContextKey, caller)
			next(w, r.WithContext(ctx))
		}
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// Caller returns the authenticated caller id stored by WithAuth.
func Caller(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CallerContextKey).(string)
	return v, ok
}
