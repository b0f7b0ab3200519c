package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleStaff      UserRole = "STAFF"
	RoleUser       UserRole = "USER"
)

// User represents an application user stored in the users table.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Principal is the acting user as seen by permission checks.
type Principal struct {
	UserID   string
	Role     UserRole
	GroupIDs []string
}

// IsSuperuser reports whether the principal bypasses ownership checks.
func (p Principal) IsSuperuser() bool {
	return p.Role == RoleSuperAdmin
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
