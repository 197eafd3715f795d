package httpserver

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nexusauth/internal/audit"
	"nexusauth/internal/auth"
	"nexusauth/internal/lockout"
	"nexusauth/internal/passkey"
	"nexusauth/internal/session"
)

const testCookie = "nexusauth_session"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	users := auth.NewMemoryStore()
	for _, u := range []struct {
		name string
		pass string
		role auth.Role
	}{
		{"root", "root-pass", auth.RoleAdmin},
		{"alice", "alice-pass", auth.RoleExecutive},
		{"bob", "bob-pass", auth.RoleViewer},
	} {
		if _, err := users.Create(ctx, u.name, u.pass, u.role); err != nil {
			t.Fatalf("seed %s: %v", u.name, err)
		}
	}

	trail := audit.NewMemoryStore()
	logger := slog.Default()
	policy := session.Policy{Lifetime: 24 * time.Hour}
	lockouts := lockout.NewTracker(lockout.DefaultPolicy)

	authSvc := auth.NewService(users, session.NewMemoryStore(), policy, trail, lockouts, logger)
	passkeySvc := passkey.NewService(
		passkey.NewMemoryCredentialStore(),
		session.NewMemoryStore(),
		policy,
		passkey.NewChallengeSigner("test-secret"),
		trail,
		logger,
	)
	passkeySvc.Directory = users

	h := &Handlers{
		Auth:            authSvc,
		Passkeys:        passkeySvc,
		Trail:           trail,
		Logger:          logger,
		CookieName:      testCookie,
		SessionLifetime: 24 * time.Hour,
	}
	ts := httptest.NewServer(NewRouter(h))
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	return doJSON(t, http.MethodPost, url, token, body)
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func login(t *testing.T, ts *httptest.Server, username, password string) (token, userID string) {
	t.Helper()
	resp, body := postJSON(t, ts.URL+"/api/v1/auth/login", "", map[string]string{
		"username": username, "password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d body %v", username, resp.StatusCode, body)
	}
	token, _ = body["token"].(string)
	userID, _ = body["userId"].(string)
	return token, userID
}

func TestLoginFailureCarriesRedirectHint(t *testing.T) {
	ts := newTestServer(t)

	resp, body := postJSON(t, ts.URL+"/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
	if body["error"] != "invalid_credentials" {
		t.Fatalf("error = %v", body["error"])
	}
	if body["redirect"] != "/login" {
		t.Fatalf("redirect = %v, want /login", body["redirect"])
	}
}

// The executive scenario over the wire: alice logs in, fails the admin
// gate, passes the session check.
func TestExecutiveScenarioHTTP(t *testing.T) {
	ts := newTestServer(t)
	token, _ := login(t, ts, "alice", "alice-pass")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/users", token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("admin endpoint as executive: status %d, want 403", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/auth/session", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session check: status %d", resp.StatusCode)
	}
	if body["username"] != "alice" || body["role"] != "executive" {
		t.Fatalf("session body = %v", body)
	}
}

func TestSessionCookieCarrier(t *testing.T) {
	ts := newTestServer(t)
	token, _ := login(t, ts, "bob", "bob-pass")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: token})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie carrier: status %d", resp.StatusCode)
	}
}

func TestLogoutFlow(t *testing.T) {
	ts := newTestServer(t)
	token, _ := login(t, ts, "bob", "bob-pass")

	resp, body := postJSON(t, ts.URL+"/api/v1/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK || body["existed"] != true {
		t.Fatalf("first logout: status %d body %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/auth/session", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("session after logout: status %d, want 401", resp.StatusCode)
	}

	resp, body = postJSON(t, ts.URL+"/api/v1/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK || body["existed"] != false {
		t.Fatalf("second logout: status %d body %v", resp.StatusCode, body)
	}
}

func TestAdminSurface(t *testing.T) {
	ts := newTestServer(t)
	token, _ := login(t, ts, "root", "root-pass")

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/users", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list users: status %d", resp.StatusCode)
	}

	resp, body := postJSON(t, ts.URL+"/api/v1/users/bob/deactivate", token, nil)
	if resp.StatusCode != http.StatusOK || body["deactivated"] != true {
		t.Fatalf("deactivate: status %d body %v", resp.StatusCode, body)
	}

	resp, loginBody := postJSON(t, ts.URL+"/api/v1/auth/login", "", map[string]string{
		"username": "bob", "password": "bob-pass",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deactivated login: status %d body %v", resp.StatusCode, loginBody)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/audit", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit: status %d", resp.StatusCode)
	}
}

func TestPasskeyFlowHTTP(t *testing.T) {
	ts := newTestServer(t)
	token, userID := login(t, ts, "alice", "alice-pass")

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	resp, reg := postJSON(t, ts.URL+"/api/v1/passkeys/register", "", map[string]string{
		"userId":      userID,
		"deviceLabel": "alice's phone",
		"publicKey":   base64.StdEncoding.EncodeToString(pub),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: status %d body %v", resp.StatusCode, reg)
	}
	credID, _ := reg["credentialId"].(string)
	challenge, _ := reg["challenge"].(string)
	if credID == "" || challenge == "" {
		t.Fatalf("registration body = %v", reg)
	}

	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(challenge)))
	resp, authBody := postJSON(t, ts.URL+"/api/v1/passkeys/authenticate", "", map[string]string{
		"credentialId": credID,
		"signature":    sig,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticate: status %d body %v", resp.StatusCode, authBody)
	}
	if authBody["userId"] != userID {
		t.Fatalf("session owner = %v, want %v", authBody["userId"], userID)
	}

	// Owner lists and revokes their credential with the password session.
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/passkeys", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list passkeys: status %d", resp.StatusCode)
	}
	resp, revokeBody := doJSON(t, http.MethodDelete, ts.URL+"/api/v1/passkeys/"+credID, token, nil)
	if resp.StatusCode != http.StatusOK || revokeBody["existed"] != true {
		t.Fatalf("revoke: status %d body %v", resp.StatusCode, revokeBody)
	}

	// Authenticating with the revoked credential misses.
	resp, _ = postJSON(t, ts.URL+"/api/v1/passkeys/authenticate", "", map[string]string{
		"credentialId": credID,
		"signature":    sig,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("revoked credential: status %d, want 404", resp.StatusCode)
	}
}

func TestPasskeyRevokeRequiresOwnership(t *testing.T) {
	ts := newTestServer(t)
	_, aliceID := login(t, ts, "alice", "alice-pass")
	bobToken, _ := login(t, ts, "bob", "bob-pass")

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, reg := postJSON(t, ts.URL+"/api/v1/passkeys/register", "", map[string]string{
		"userId":    aliceID,
		"publicKey": base64.StdEncoding.EncodeToString(pub),
	})
	credID, _ := reg["credentialId"].(string)

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/api/v1/passkeys/"+credID, bobToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign revoke: status %d, want 403", resp.StatusCode)
	}

	rootToken, _ := login(t, ts, "root", "root-pass")
	resp, body := doJSON(t, http.MethodDelete, ts.URL+"/api/v1/passkeys/"+credID, rootToken, nil)
	if resp.StatusCode != http.StatusOK || body["existed"] != true {
		t.Fatalf("admin revoke: status %d body %v", resp.StatusCode, body)
	}
}
