package domain

// Role type to distinguish between user roles
type Role string

// Define constants for roles
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Caller identifies the authenticated user behind a request or CLI run.
// UserID is the token's uid claim and becomes createdBy on inserted workouts.
type Caller struct {
	UserID string
	Role   Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Owns reports whether the caller created w.
func (c Caller) Owns(w *Workout) bool {
	return w != nil && w.CreatedBy != "" && w.CreatedBy == c.UserID
}
