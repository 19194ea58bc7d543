package core

import "fmt"

// Role controls which dashboard a profile may see. The set is closed.
type Role string

const (
	RoleHost        Role = "host"
	RoleCoordinator Role = "coordinator"
	RoleTourist     Role = "tourist"
)

// Roles lists every known role.
var Roles = []Role{RoleHost, RoleCoordinator, RoleTourist}

// ParseRole accepts only the exact stored spelling of a known role.
// There is no fallback: anything else is ErrUnknownRole.
func ParseRole(raw string) (Role, error) {
	switch r := Role(raw); r {
	case RoleHost, RoleCoordinator, RoleTourist:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

func (r Role) String() string { return string(r) }
