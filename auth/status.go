package auth

import (
	"github.com/fw-platform/wish-console/users"
)

type State int

const (
	StateLoggedOut State = iota
	StateAuthenticated
	StateImpersonating // Authenticated as ADMIN and viewing as another user
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateImpersonating:
		return "impersonating"
	default:
		return "logged out"
	}
}

// Status is the published session state
type Status struct {
	State         State
	Authenticated bool
	Role          users.RoleType
	// IsAdmin is true only for an ADMIN who is not impersonating, so admin
	// affordances hide while previewing another user's view.
	IsAdmin       bool
	Impersonating *users.AppUser
}

func newStatus(state State, role users.RoleType, impersonating *users.AppUser) Status {
	return Status{
		State:         state,
		Authenticated: state != StateLoggedOut,
		Role:          role,
		IsAdmin:       state == StateAuthenticated && role.IsAdmin(),
		Impersonating: impersonating,
	}
}
