package auth

// Role is the closed set of roles a platform user can hold
type Role int

const (
	// RoleUnrecognized covers any stored role string outside the known set
	RoleUnrecognized Role = iota
	RoleAdmin
	RoleDonor
	RoleVolunteer
)

// ParseRole maps a stored role string to a Role. Matching is exact.
func ParseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	case "donor":
		return RoleDonor
	case "volunteer":
		return RoleVolunteer
	default:
		return RoleUnrecognized
	}
}

// String returns the stored form of the role
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleDonor:
		return "donor"
	case RoleVolunteer:
		return "volunteer"
	default:
		return "unrecognized"
	}
}

// Known reports whether r is one of admin, donor or volunteer
func (r Role) Known() bool {
	switch r {
	case RoleAdmin, RoleDonor, RoleVolunteer:
		return true
	default:
		return false
	}
}

// SelfService reports whether users may register themselves with this role
func (r Role) SelfService() bool {
	return r == RoleDonor || r == RoleVolunteer
}
