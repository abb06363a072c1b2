// Package domain contains core domain types for the Regulation Buddy service.
package domain

import (
	"encoding/json"
	"time"
)

// Role is the account role stored on a profile.
type Role string

const (
	RoleChild  Role = "child"
	RoleParent Role = "parent"
	RoleFamily Role = "family"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleChild, RoleParent, RoleFamily:
		return true
	}
	return false
}

// User holds sign-in credentials. The profile lives in its own record and is
// provisioned asynchronously after sign-up.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the user-facing account record.
type Profile struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Role        Role            `json:"role"`
	Name        string          `json:"name,omitempty"`
	Age         int             `json:"age,omitempty"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	ParentID    string          `json:"parent_id,omitempty"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
