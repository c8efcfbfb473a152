package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/repository"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util/errorutil"
)

// IssueCreateInput describes issue creation payload. Status is not accepted:
// new issues always start OPEN.
type IssueCreateInput struct {
	Title       string
	Description string
	Priority    domain.IssuePriority
}

// IssueListQuery describes listing parameters before coercion.
type IssueListQuery struct {
	Search string
	Page   int
	Limit  int
}

// IssueUpdateInput is a partial patch; nil fields are left unchanged.
type IssueUpdateInput struct {
	Title       *string
	Description *string
	Priority    *domain.IssuePriority
	Status      *domain.IssueStatus
}

// IssuePage is a paginated slice of issues with the unpaginated total.
type IssuePage struct {
	Data  []domain.Issue
	Total int64
	Page  int
	Limit int
}

// IssueService coordinates issue workflows.
type IssueService struct {
	issues     repository.IssueRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
}

// IssueDependencies bundles repositories for the issue service.
type IssueDependencies struct {
	IssueRepo  repository.IssueRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	return &IssueService{
		issues:     deps.IssueRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
	}
}

// Create persists a new issue owned by the requester.
func (s *IssueService) Create(ctx context.Context, input IssueCreateInput, ownerID string) (*domain.Issue, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.IssuePriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	issue := &domain.Issue{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.IssueStatusOpen,
		Priority:    priority,
		OwnerID:     ownerID,
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, apperrors.NewOperationFailed(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueCreated,
		ActorID: ownerID,
		Payload: events.IssueCreatedPayload{
			IssueID:  issue.ID,
			Title:    issue.Title,
			Priority: issue.Priority,
		},
	})
	return issue, nil
}

// List returns a page of issues visible to the requester. Non-admin callers
// only see their own issues; a search term matches title, status or priority.
func (s *IssueService) List(ctx context.Context, query IssueListQuery, requesterID string, requesterRole domain.Role) (*IssuePage, error) {
	page, limit := normalizePage(query.Page, query.Limit)

	filter := repository.IssueFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		filter.SearchTerm = &search
	}
	if requesterRole != domain.RoleAdmin {
		filter.OwnerID = &requesterID
	}

	issues, total, err := s.issues.ListAndCount(ctx, filter)
	if err != nil {
		return nil, apperrors.NewOperationFailed(err)
	}
	if issues == nil {
		issues = []domain.Issue{}
	}
	return &IssuePage{Data: issues, Total: total, Page: page, Limit: limit}, nil
}

// GetByID fetches a single issue. Access gating beyond authentication is the
// route's responsibility.
func (s *IssueService) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, issueStoreError(err)
	}
	return issue, nil
}

// Update applies a partial patch. updatedAt is refreshed even when the patch
// changes nothing.
func (s *IssueService) Update(ctx context.Context, id string, patch IssueUpdateInput, requesterID string) (*domain.Issue, error) {
	if _, err := s.users.GetByID(ctx, requesterID); err != nil {
		return nil, userStoreError(err)
	}
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, issueStoreError(err)
	}

	fields := make([]string, 0, 4)
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title cannot be empty", nil)
		}
		issue.Title = title
		fields = append(fields, "title")
	}
	if patch.Description != nil {
		issue.Description = *patch.Description
		fields = append(fields, "description")
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": *patch.Priority})
		}
		issue.Priority = *patch.Priority
		fields = append(fields, "priority")
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": *patch.Status})
		}
		issue.Status = *patch.Status
		fields = append(fields, "status")
	}

	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, issueStoreError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueUpdated,
		ActorID: requesterID,
		Payload: events.IssueUpdatedPayload{
			IssueID: issue.ID,
			Fields:  fields,
		},
	})
	return issue, nil
}

// TransitionStatus marks an issue RESOLVED or CLOSED. Any other target is
// rejected; the current status is not restricted.
func (s *IssueService) TransitionStatus(ctx context.Context, id string, target domain.IssueStatus, requesterID string) (*domain.Issue, error) {
	if target != domain.IssueStatusResolved && target != domain.IssueStatusClosed {
		return nil, apperrors.NewValidationError("only RESOLVED or CLOSED status are allowed", map[string]any{"status": target})
	}
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, issueStoreError(err)
	}
	if _, err := s.users.GetByID(ctx, requesterID); err != nil {
		return nil, userStoreError(err)
	}

	oldStatus := issue.Status
	issue.Status = target
	if err := s.issues.Update(ctx, issue); err != nil {
		return nil, issueStoreError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueStatusChanged,
		ActorID: requesterID,
		Payload: events.IssueStatusChangedPayload{
			IssueID:   issue.ID,
			OldStatus: oldStatus,
			NewStatus: issue.Status,
		},
	})
	return issue, nil
}

func (s *IssueService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func issueStoreError(err error) error {
	if err == pgx.ErrNoRows {
		return apperrors.NewNotFound("issue", nil)
	}
	return apperrors.NewOperationFailed(err)
}

func userStoreError(err error) error {
	if err == pgx.ErrNoRows {
		return apperrors.NewNotFound("user", nil)
	}
	return apperrors.NewOperationFailed(err)
}
