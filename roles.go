package lmsauth

import "fmt"

// Role is the coarse permission level of a user.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// DefaultRole is assigned when registration does not name one.
const DefaultRole = RoleStudent

// AllRoles returns every known role.
func AllRoles() []Role {
	return []Role{RoleStudent, RoleInstructor, RoleAdmin}
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole maps "" to DefaultRole and rejects anything outside the enumeration.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return DefaultRole, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// AtLeast orders roles student < instructor < admin.
func (r Role) AtLeast(other Role) bool {
	return r.rank() >= other.rank()
}

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleInstructor:
		return 2
	case RoleStudent:
		return 1
	}
	return 0
}
