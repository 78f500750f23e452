package notetree

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthGate authorizes mutating requests. The gate only answers yes or no;
// identity and roles are out of scope.
type AuthGate interface {
	// Authorize reports whether the request may mutate state.
	Authorize(r *http.Request) bool
}

// AllowAllGate admits every request. Used when no auth token is configured.
type AllowAllGate struct{}

func (AllowAllGate) Authorize(*http.Request) bool { return true }

// BearerTokenGate admits requests carrying the configured bearer token.
type BearerTokenGate struct {
	Token string
}

func (g BearerTokenGate) Authorize(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(g.Token)) == 1
}

// requireAuth wraps a mutating handler with the auth gate.
func (a *App) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.auth.Authorize(r) {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}
