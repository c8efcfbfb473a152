package dto

import (
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// BaseResponse is the uniform envelope on user-list and issue endpoints.
type BaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// CreateIssueRequest payload. Status is never accepted on creation.
type CreateIssueRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Priority    domain.IssuePriority `json:"priority"`
}

// UpdateIssueRequest is a partial patch; absent fields stay unchanged.
type UpdateIssueRequest struct {
	Title       *string               `json:"title"`
	Description *string               `json:"description"`
	Priority    *domain.IssuePriority `json:"priority"`
	Status      *domain.IssueStatus   `json:"status"`
}

// TransitionStatusRequest payload for PATCH :id/status.
type TransitionStatusRequest struct {
	Status domain.IssueStatus `json:"status"`
}

// IssueResponse is the public issue shape.
type IssueResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      domain.IssueStatus   `json:"status"`
	Priority    domain.IssuePriority `json:"priority"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// IssueListResponse is the paginated issue list body.
type IssueListResponse struct {
	Data  []IssueResponse `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}
