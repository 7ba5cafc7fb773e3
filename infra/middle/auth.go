package middle

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mstgnz/paygate/infra/auth"
	"github.com/mstgnz/paygate/infra/response"
)

type sessionKey struct{}

// SessionMiddleware rejects requests without a valid bearer credential with
// 401 before they reach the handler.
func SessionMiddleware(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Error(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				response.Error(w, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <token>", nil)
				return
			}
			if token = strings.TrimSpace(token); token == "" {
				response.Error(w, http.StatusUnauthorized, "Token required", nil)
				return
			}

			session, err := verifier.Verify(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					response.Error(w, http.StatusUnauthorized, "Session expired", nil)
				case errors.Is(err, auth.ErrNoVerifier):
					response.Error(w, http.StatusUnauthorized, "Authentication is not configured", nil)
				default:
					response.Error(w, http.StatusUnauthorized, "Invalid credentials", nil)
				}
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession returns the session stored by SessionMiddleware, or nil
func GetSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionKey{}).(*auth.Session)
	return session
}
