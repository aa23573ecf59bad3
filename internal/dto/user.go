package dto

import "github.com/umscc/permit-api/internal/models"

// CreateUserRequest registers a new account (ict only).
type CreateUserRequest struct {
	Username string          `json:"username" validate:"required,min=3"`
	Password string          `json:"password" validate:"required,min=8"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required"`
}

// UserQuery mirrors supported user listing filters.
type UserQuery struct {
	Role   string
	Active *bool
	Search string
}
