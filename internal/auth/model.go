package auth

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleExecutive Role = "executive"
	RoleViewer    Role = "viewer"
)

// rank orders roles for authorization checks. Unknown roles rank zero,
// below every defined tier, so a corrupted role value always denies.
var rank = map[Role]int{
	RoleViewer:    1,
	RoleExecutive: 2,
	RoleAdmin:     3,
}

// AtLeast reports whether r grants everything required does.
func (r Role) AtLeast(required Role) bool {
	return rank[r] >= rank[required]
}

// Valid reports whether r is a defined tier.
func (r Role) Valid() bool {
	return rank[r] > 0
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLogin    time.Time `json:"lastLogin,omitempty"`
}

// Identity is the authenticated principal attached to a request after
// session validation.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
