package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"nexusauth/internal/auth"
)

// NewRouter wires the HTTP API. Public routes: health, login, and the
// passkey handshake. Everything else sits behind the session middleware;
// the admin surface additionally requires the admin role.
func NewRouter(h *Handlers) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Unauthenticated entry points.
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	api.HandleFunc("/passkeys/register", h.passkeyRegister).Methods(http.MethodPost)
	api.HandleFunc("/passkeys/challenge", h.passkeyChallenge).Methods(http.MethodPost)
	api.HandleFunc("/passkeys/authenticate", h.passkeyAuthenticate).Methods(http.MethodPost)

	// Session-guarded surface.
	secured := api.PathPrefix("/").Subrouter()
	secured.Use(auth.SessionMiddleware(h.Auth, h.CookieName))
	secured.HandleFunc("/auth/session", h.session).Methods(http.MethodGet)
	secured.HandleFunc("/passkeys", h.passkeyList).Methods(http.MethodGet)
	secured.HandleFunc("/passkeys/{id}", h.passkeyRevoke).Methods(http.MethodDelete)

	// Admin surface.
	secured.HandleFunc("/users", auth.RequireRole(h.usersList, auth.RoleAdmin)).Methods(http.MethodGet)
	secured.HandleFunc("/users/{username}/deactivate", auth.RequireRole(h.userDeactivate, auth.RoleAdmin)).Methods(http.MethodPost)
	secured.HandleFunc("/audit", auth.RequireRole(h.auditRecent, auth.RoleAdmin)).Methods(http.MethodGet)

	return r
}
