package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/gorilla/mux"

	"nexusauth/internal/audit"
	"nexusauth/internal/auth"
	"nexusauth/internal/passkey"
)

// Handlers bundles the services the HTTP layer fronts.
type Handlers struct {
	Auth     *auth.Service
	Passkeys *passkey.Service
	Trail    audit.Store
	Logger   *slog.Logger

	CookieName      string
	SessionLifetime time.Duration
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "")
		return
	}
	res, err := h.Auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountLocked):
			writeError(w, http.StatusLocked, "account_locked", h.Auth.RedirectHint)
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", h.Auth.RedirectHint)
		default:
			h.Logger.Error("login", "err", err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", h.Auth.RedirectHint)
		}
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  time.Now().Add(h.SessionLifetime),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	existed, err := h.Auth.Logout(r.Context(), auth.TokenFromRequest(r, h.CookieName))
	if err != nil {
		h.Logger.Error("logout", "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"existed": existed})
}

// session echoes the validated identity; middleware has already done
// the work.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "")
		return
	}
	writeJSON(w, http.StatusOK, id)
}

type passkeyRegisterRequest struct {
	UserID      string `json:"userId"`
	DeviceLabel string `json:"deviceLabel"`
	PublicKey   string `json:"publicKey"`
}

func (h *Handlers) passkeyRegister(w http.ResponseWriter, r *http.Request) {
	var req passkeyRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "")
		return
	}
	reg, err := h.Passkeys.Register(r.Context(), req.UserID, req.DeviceLabel, req.PublicKey)
	if err != nil {
		if errors.Is(err, auth.ErrStoreUnavailable) {
			h.Logger.Error("passkey register", "err", err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "")
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

type passkeyChallengeRequest struct {
	CredentialID string `json:"credentialId"`
}

func (h *Handlers) passkeyChallenge(w http.ResponseWriter, r *http.Request) {
	var req passkeyChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "")
		return
	}
	challenge, err := h.Passkeys.Challenge(r.Context(), req.CredentialID)
	if err != nil {
		h.writePasskeyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
}

type passkeyAuthRequest struct {
	CredentialID string `json:"credentialId"`
	Signature    string `json:"signature"`
}

func (h *Handlers) passkeyAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req passkeyAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "")
		return
	}
	res, err := h.Passkeys.Authenticate(r.Context(), req.CredentialID, req.Signature)
	if err != nil {
		h.writePasskeyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) passkeyList(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "")
		return
	}
	creds, err := h.Passkeys.Credentials(r.Context(), id.UserID)
	if err != nil {
		h.Logger.Error("list passkeys", "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

// passkeyRevoke lets a user revoke their own credential; admins may
// revoke anyone's.
func (h *Handlers) passkeyRevoke(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "")
		return
	}
	credID := mux.Vars(r)["id"]
	if !id.Role.AtLeast(auth.RoleAdmin) {
		owned, err := h.Passkeys.Credentials(r.Context(), id.UserID)
		if err != nil {
			h.Logger.Error("list passkeys", "err", err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
			return
		}
		mine := false
		for _, c := range owned {
			if c.ID == credID {
				mine = true
				break
			}
		}
		if !mine {
			writeError(w, http.StatusForbidden, "insufficient_permission", "")
			return
		}
	}
	existed, err := h.Passkeys.Revoke(r.Context(), credID)
	if err != nil {
		h.Logger.Error("revoke passkey", "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"existed": existed})
}

func (h *Handlers) usersList(w http.ResponseWriter, r *http.Request) {
	users, err := h.Auth.Users(r.Context())
	if err != nil {
		h.Logger.Error("list users", "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handlers) userDeactivate(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	done, err := h.Auth.Deactivate(r.Context(), username)
	if err != nil {
		h.Logger.Error("deactivate user", "user", username, "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
		return
	}
	if !done {
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deactivated": true})
}

func (h *Handlers) auditRecent(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Trail.Recent(r.Context(), 0)
	if err != nil {
		h.Logger.Error("list audit entries", "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) writePasskeyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrCredentialNotFound):
		writeError(w, http.StatusNotFound, "credential_not_found", "")
	case errors.Is(err, auth.ErrSignatureInvalid):
		writeError(w, http.StatusUnauthorized, "signature_invalid", "")
	default:
		h.Logger.Error("passkey", "err", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the error kind and, for password-flow failures, the
// login redirect hint. The hint is informational; this service never
// issues HTTP redirects itself.
func writeError(w http.ResponseWriter, status int, kind, redirect string) {
	body := map[string]string{"error": kind}
	if redirect != "" {
		body["redirect"] = redirect
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
