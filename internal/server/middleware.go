package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/mbenali/signbridge/internal/auth"
)

// ctxKey is the private context key type for request-scoped values.
type ctxKey int

const claimsKey ctxKey = iota

// sessionClaims returns the verified token claims stored by
// [Server.requireSession]. The second return is false on unauthenticated
// requests (handlers behind the middleware never see that).
func sessionClaims(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(auth.Claims)
	return claims, ok
}

// requireSession verifies the Authorization bearer token and stores its
// claims in the request context.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		claims, err := s.deps.Auth.VerifySession(token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// requireSuperuser is [Server.requireSession] plus a superuser check.
// Non-superuser tokens get 403, not 404: the back-office paths are not
// secret, only privileged.
func (s *Server) requireSuperuser(next http.HandlerFunc) http.HandlerFunc {
	return s.requireSession(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := sessionClaims(r.Context())
		if !claims.Superuser {
			s.writeJSON(w, http.StatusForbidden, errorBody{Error: "superuser required"})
			return
		}
		next(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}
