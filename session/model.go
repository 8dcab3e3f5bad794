package session

import "errors"

// Role is the application role held by an authenticated user.
type Role string

const (
	// RoleCitizen files and tracks tickets. It is the default for new identities.
	RoleCitizen Role = "citizen"
	// RoleTechnician triages and resolves assigned tickets.
	RoleTechnician Role = "technician"
	// RoleAuthorityAdmin manages technicians and oversees all tickets.
	RoleAuthorityAdmin Role = "authority-admin"
)

// ErrUnknownRole is returned by [ParseRole] for values outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole maps a wire value onto a [Role]. The "authority" and "admin"
// spellings sent by older backend builds map to [RoleAuthorityAdmin].
func ParseRole(v string) (Role, error) {
	switch v {
	case string(RoleCitizen):
		return RoleCitizen, nil
	case string(RoleTechnician):
		return RoleTechnician, nil
	case string(RoleAuthorityAdmin), "authority", "admin":
		return RoleAuthorityAdmin, nil
	default:
		return "", ErrUnknownRole
	}
}

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleTechnician, RoleAuthorityAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// Session is the in-memory record of the currently authenticated identity.
//
// A Session with Authenticated == false carries no other data; use [Empty]
// rather than clearing fields one by one.
type Session struct {
	UserID      string
	DisplayName string
	// Email is empty when the identity has no address on file.
	Email         string
	Role          Role
	Points        uint32
	Authenticated bool
}

// Empty returns the unauthenticated session.
func Empty() Session {
	return Session{}
}

// IsZero reports whether s is the unauthenticated session.
func (s Session) IsZero() bool {
	return s == Session{}
}

// Consistent reports whether s satisfies the session invariants: an
// authenticated session has a user ID and a known role, and an
// unauthenticated one carries no data at all.
func (s Session) Consistent() bool {
	if !s.Authenticated {
		return s.IsZero()
	}
	return s.UserID != "" && s.Role.Valid()
}
