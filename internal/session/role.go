package session

import (
	"fmt"
	"strings"
)

// Role identifies one of the three upload slots.
type Role int

const (
	RolePerson Role = iota
	RoleTop
	RoleBottom

	numRoles = 3
)

// Roles lists every role in request order.
var Roles = [numRoles]Role{RolePerson, RoleTop, RoleBottom}

func (r Role) String() string {
	switch r {
	case RolePerson:
		return "person"
	case RoleTop:
		return "top"
	case RoleBottom:
		return "bottom"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Label is the caption shown above the role's upload slot.
func (r Role) Label() string {
	switch r {
	case RolePerson:
		return "1. Upload Person's Photo"
	case RoleTop:
		return "2. Upload Top Photo"
	case RoleBottom:
		return "3. Upload Bottom Photo"
	default:
		return r.String()
	}
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r >= RolePerson && r <= RoleBottom
}

// ParseRole converts "person", "top" or "bottom" to a Role.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if strings.EqualFold(strings.TrimSpace(s), r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}
