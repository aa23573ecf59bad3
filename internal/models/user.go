package models

import "time"

// UserRole represents the closed set of review roles.
type UserRole string

const (
	RolePermittingOfficer    UserRole = "permitting_officer"
	RoleChairperson          UserRole = "chairperson"
	RoleCatchmentManager     UserRole = "catchment_manager"
	RoleCatchmentChairperson UserRole = "catchment_chairperson"
	RolePermitSupervisor     UserRole = "permit_supervisor"
	RoleICT                  UserRole = "ict"
)

// AllRoles lists every known role, used for payload validation.
var AllRoles = []UserRole{
	RolePermittingOfficer,
	RoleChairperson,
	RoleCatchmentManager,
	RoleCatchmentChairperson,
	RolePermitSupervisor,
	RoleICT,
}

// Valid reports whether the role belongs to the closed set.
func (r UserRole) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *UserRole
	Active   *bool
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
