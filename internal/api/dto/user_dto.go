package dto

import (
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// RegisterUserRequest payload for new accounts.
type RegisterUserRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the login contract: a bearer token plus its subject.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserEmail   string `json:"userEmail"`
	UserID      string `json:"userId"`
}

// UserResponse is the public account shape; it never carries the hash.
type UserResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// UserListResponse is the paginated user list body.
type UserListResponse struct {
	Data  []UserResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
