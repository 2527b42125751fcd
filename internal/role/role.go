package role

import "fmt"

// Role is the access level a user holds on an event. Roles are ordered,
// a higher role implies every lower one.
type Role int

const (
	Viewer Role = iota
	Editor
	Owner
)

// Parse converts the stored string form into a Role.
func Parse(s string) (Role, error) {
	switch s {
	case "viewer":
		return Viewer, nil
	case "editor":
		return Editor, nil
	case "owner":
		return Owner, nil
	}
	return Viewer, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case Viewer:
		return "viewer"
	case Editor:
		return "editor"
	case Owner:
		return "owner"
	}
	return "viewer"
}

// Meets reports whether r satisfies the minimum required role.
// Every permission check in the system goes through this comparison.
func (r Role) Meets(minimum Role) bool {
	return r >= minimum
}
