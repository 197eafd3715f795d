package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nexusauth/internal/session"
)

const testCookie = "nexusauth_session"

func TestTokenFromRequest(t *testing.T) {
	mk := func(header, cookie string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if cookie != "" {
			r.AddCookie(&http.Cookie{Name: testCookie, Value: cookie})
		}
		return r
	}

	cases := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"bearer header", mk("Bearer tok-1", ""), "tok-1"},
		{"cookie", mk("", "tok-2"), "tok-2"},
		{"header wins over cookie", mk("Bearer tok-1", "tok-2"), "tok-1"},
		{"non-bearer header falls back to cookie", mk("Basic dXNlcjpwYXNz", "tok-2"), "tok-2"},
		{"non-bearer header alone yields nothing", mk("Basic dXNlcjpwYXNz", ""), ""},
		{"neither", mk("", ""), ""},
	}
	for _, tc := range cases {
		if got := TokenFromRequest(tc.req, testCookie); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSessionMiddleware(t *testing.T) {
	svc, _, _ := newTestService(t)
	res, err := svc.Authenticate(context.Background(), "alice", "alice-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	var captured *Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := SessionMiddleware(svc, testCookie)(next)

	// Valid token via header.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("header token: status %d", rec.Code)
	}
	if captured == nil || captured.Username != "alice" {
		t.Fatalf("identity = %+v", captured)
	}

	// Valid token via cookie.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: res.Token})
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie token: status %d", rec.Code)
	}

	// Missing token.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", rec.Code)
	}
}

func TestSessionMiddlewareStoreOutage(t *testing.T) {
	sessions := &failingSessionStore{err: errors.New("connection refused")}
	svc := NewService(NewMemoryStore(), sessions, session.Policy{Lifetime: 24 * time.Hour}, nil, nil, slog.Default())
	handler := SessionMiddleware(svc, testCookie)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "store_unavailable" {
		t.Fatalf("error kind = %q, want store_unavailable", body["error"])
	}
}

func TestRequireRole(t *testing.T) {
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

	serve := func(id *Identity, required Role) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if id != nil {
			req = req.WithContext(WithIdentity(req.Context(), id))
		}
		RequireRole(ok, required)(rec, req)
		return rec.Code
	}

	if got := serve(&Identity{Role: RoleAdmin}, RoleAdmin); got != http.StatusOK {
		t.Fatalf("admin behind admin gate: %d", got)
	}
	if got := serve(&Identity{Role: RoleExecutive}, RoleAdmin); got != http.StatusForbidden {
		t.Fatalf("executive behind admin gate: %d, want 403", got)
	}
	if got := serve(&Identity{Role: RoleViewer}, RoleViewer); got != http.StatusOK {
		t.Fatalf("viewer behind viewer gate: %d", got)
	}
	if got := serve(nil, RoleViewer); got != http.StatusUnauthorized {
		t.Fatalf("no identity: %d, want 401", got)
	}
}
