package events

import (
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered     EventType = "user_registered"
	EventIssueCreated       EventType = "issue_created"
	EventIssueUpdated       EventType = "issue_updated"
	EventIssueStatusChanged EventType = "issue_status_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	IssueID  string               `json:"issue_id"`
	Title    string               `json:"title"`
	Priority domain.IssuePriority `json:"priority"`
}

// IssueUpdatedPayload payload.
type IssueUpdatedPayload struct {
	IssueID string   `json:"issue_id"`
	Fields  []string `json:"fields"`
}

// IssueStatusChangedPayload payload.
type IssueStatusChangedPayload struct {
	IssueID   string             `json:"issue_id"`
	OldStatus domain.IssueStatus `json:"old_status"`
	NewStatus domain.IssueStatus `json:"new_status"`
}
