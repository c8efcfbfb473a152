package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-tracker/internal/api/dto"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/service"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util/errorutil"
)

// IssuesHandler manages issue endpoints.
type IssuesHandler struct {
	issues *service.IssueService
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(issueService *service.IssueService) *IssuesHandler {
	return &IssuesHandler{issues: issueService}
}

// Create POST /isssue.
func (h *IssuesHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	issue, err := h.issues.Create(c.Context(), service.IssueCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
	}, principal.UserID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.BaseResponse{
		Success: true,
		Message: "Issue Created",
		Data:    issueResponse(issue),
	})
}

// List GET /isssue.
func (h *IssuesHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	query := service.IssueListQuery{
		Search: c.Query("search"),
		Page:   parseInt(c.Query("page"), 1),
		Limit:  parseInt(c.Query("limit"), 10),
	}

	result, err := h.issues.List(c.Context(), query, principal.UserID, principal.Role)
	if err != nil {
		return err
	}

	items := make([]dto.IssueResponse, 0, len(result.Data))
	for i := range result.Data {
		items = append(items, issueResponse(&result.Data[i]))
	}
	return c.JSON(dto.BaseResponse{
		Success: true,
		Message: "Issue List",
		Data: dto.IssueListResponse{
			Data:  items,
			Total: result.Total,
			Page:  result.Page,
			Limit: result.Limit,
		},
	})
}

// Get GET /isssue/:id.
func (h *IssuesHandler) Get(c *fiber.Ctx) error {
	issue, err := h.issues.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.BaseResponse{
		Success: true,
		Message: "Issue Found",
		Data:    issueResponse(issue),
	})
}

// Update PUT /isssue/:id.
func (h *IssuesHandler) Update(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	issue, err := h.issues.Update(c.Context(), c.Params("id"), service.IssueUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      req.Status,
	}, principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(dto.BaseResponse{
		Success: true,
		Message: "Issue Updated",
		Data:    issueResponse(issue),
	})
}

// TransitionStatus PATCH /isssue/:id/status.
func (h *IssuesHandler) TransitionStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.TransitionStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	issue, err := h.issues.TransitionStatus(c.Context(), c.Params("id"), req.Status, principal.UserID)
	if err != nil {
		return err
	}
	message := "Issue marked as Closed"
	if issue.Status == domain.IssueStatusResolved {
		message = "Issue marked as Resolved"
	}
	return c.JSON(dto.BaseResponse{
		Success: true,
		Message: message,
		Data:    issueResponse(issue),
	})
}

func issueResponse(issue *domain.Issue) dto.IssueResponse {
	return dto.IssueResponse{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      issue.Status,
		Priority:    issue.Priority,
		CreatedAt:   issue.CreatedAt,
		UpdatedAt:   issue.UpdatedAt,
	}
}
