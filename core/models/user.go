package models

// User is a platform account. Roles are evaluated once per request into a
// permission, never re-checked ad hoc in handlers.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	Active       bool
}

// Role is the coarse account type.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleLabeler   Role = "labeler"
	RoleAdmin     Role = "admin"
	RoleUniversal Role = "universal"
)

// Elevated reports whether the role bypasses ownership checks.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleUniversal
}
