package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the session cookie set on login.
const CookieName = "token"

// contextKey is unexported so no other package can read or overwrite the
// identity stored in a request context.
type contextKey struct{}

var identityKey contextKey

// RequireAuth rejects requests without a valid token with 401.
//
// MIDDLEWARE SHAPE:
// func(http.Handler) http.Handler is what chi's r.Use and r.With expect.
// The returned handler runs before the route handler and may stop the chain.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := FromRequest(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the identity when a valid token is present and lets
// anonymous requests through untouched. Public reads use it so owners and
// collaborators still see their private snippets.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := FromRequest(r, tokens); err == nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller, or false for anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// UserIDFromContext is a shorthand for handlers that only need the id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UserID, ok
}

var errNoToken = errors.New("auth: no token")

// FromRequest validates the bearer header, falling back to the cookie.
// The websocket upgrade also calls it directly.
func FromRequest(r *http.Request, tokens *TokenService) (Identity, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			return tokens.Validate(strings.TrimSpace(token))
		}
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return tokens.Validate(c.Value)
	}
	return Identity{}, errNoToken
}
