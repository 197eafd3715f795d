package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const identityContextKey contextKey = "nexusauth_identity"

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok
}

// TokenFromRequest extracts the bearer token from the Authorization
// header or, failing that, the session cookie. Both carriers are
// accepted everywhere; a header carrying some other scheme does not
// suppress the cookie.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// SessionMiddleware validates the request's token and injects the
// identity into the context. Missing, garbage, and expired tokens all
// produce 401; the body names the kind so clients can distinguish an
// expired session from a missing one.
func SessionMiddleware(svc *Service, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := svc.Validate(r.Context(), TokenFromRequest(r, cookieName))
			if err != nil {
				writeDenied(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole wraps a handler behind a minimum role. It must run inside
// SessionMiddleware; without an identity in context it denies.
func RequireRole(next http.HandlerFunc, required Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			writeDenied(w, ErrUnauthenticated)
			return
		}
		if !id.Role.AtLeast(required) {
			writeDenied(w, ErrInsufficientPermission)
			return
		}
		next(w, r)
	}
}

func writeDenied(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	kind := "unauthenticated"
	switch {
	case errors.Is(err, ErrSessionExpired):
		kind = "session_expired"
	case errors.Is(err, ErrInsufficientPermission):
		status = http.StatusForbidden
		kind = "insufficient_permission"
	case errors.Is(err, ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		kind = "store_unavailable"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind})
}
