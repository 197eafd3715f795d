package audit

import "time"

// Entry records a terminal authentication outcome. The trail is
// append-only; nothing in the core reads it back except the admin
// query endpoint.
type Entry struct {
	ID     int64     `json:"id"`
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

// Actions recorded by the authenticators.
const (
	ActionLoginOK         = "login_ok"
	ActionLoginFailed     = "login_failed"
	ActionAccountLocked   = "account_locked"
	ActionLogout          = "logout"
	ActionSessionExpired  = "session_expired"
	ActionPasskeyRegister = "passkey_register"
	ActionPasskeyAuthOK   = "passkey_auth_ok"
	ActionPasskeyAuthFail = "passkey_auth_failed"
	ActionPasskeyRevoke   = "passkey_revoke"
	ActionUserDeactivated = "user_deactivated"
)
