package domain

import "time"

// UserRole represents the role of a platform user
type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

// User represents the authenticated platform user
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	Role      UserRole   `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
