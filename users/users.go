package users

import (
	"strings"

	"github.com/fw-platform/wish-console/internal/utils"
)

// RoleType represents the console role carried by a session
type RoleType string

const (
	RoleAdmin RoleType = "ADMIN" // Can manage users, schedulers and impersonate other users
	RoleUser  RoleType = "USER"  // Regular console user
)

// ParseRole normalises a role string from the backend. Unknown values map to RoleUser.
func ParseRole(s string) RoleType {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

func (r RoleType) IsAdmin() bool {
	return r == RoleAdmin
}

func (r RoleType) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// AppUser is the user snapshot returned by GET /users/me and used as the
// impersonation record.
type AppUser struct {
	ID                   int64    `json:"id"`                             // Backend user ID
	Name                 string   `json:"name"`                           // Display name
	Email                string   `json:"email"`                          // Login email
	Role                 RoleType `json:"role"`                           // ADMIN or USER
	Active               *bool    `json:"active,omitempty"`               // Nil when the backend omits it
	Relationship         string   `json:"relationShip,omitempty"`         // Relationship label used by wish generation
	IsGoodMorningEnabled bool     `json:"isGoodMorningEnabled,omitempty"` // Wish preference flags
	IsGoodNightEnabled   bool     `json:"isGoodNightEnabled,omitempty"`
	IsBirthdayEnabled    bool     `json:"isBirthdayEnabled,omitempty"`
}

// IsActive treats a missing flag as active
func (u *AppUser) IsActive() bool {
	return utils.ValueOr(u.Active, true)
}
