package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/repository"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util/errorutil"
)

// VerifiedIdentity is the result of a successful credential check.
type VerifiedIdentity struct {
	ID    string
	Email string
	Role  domain.Role
}

// TokenResult carries an issued access token and its subject.
type TokenResult struct {
	AccessToken string
	UserEmail   string
	UserID      string
	ExpiresAt   time.Time
}

// UserPage is a paginated slice of users.
type UserPage struct {
	Data  []domain.User
	Total int64
	Page  int
	Limit int
}

// IdentityService coordinates registration, credential checks and token issuance.
type IdentityService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	dispatcher events.Dispatcher
}

// IdentityDependencies bundles requirements for the identity service.
type IdentityDependencies struct {
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
}

// NewIdentityService builds the service.
func NewIdentityService(cfg config.Config, deps IdentityDependencies) *IdentityService {
	return &IdentityService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
		dispatcher: deps.Dispatcher,
	}
}

// Register creates a new account. The returned user carries no password hash.
func (s *IdentityService) Register(ctx context.Context, email, password string, role domain.Role) (*domain.User, error) {
	if role == "" {
		role = domain.RoleGuest
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": role})
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("user already exists", map[string]any{"email": email})
	} else if err != pgx.ErrNoRows {
		return nil, apperrors.NewOperationFailed(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewOperationFailed(err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.NewOperationFailed(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventUserRegistered,
		ActorID: user.ID,
		Payload: events.UserRegisteredPayload{
			UserID: user.ID,
			Email:  user.Email,
			Role:   user.Role,
		},
	})

	user.PasswordHash = ""
	return user, nil
}

// VerifyCredentials checks email and password. Unknown email and hash
// mismatch are indistinguishable to the caller.
func (s *IdentityService) VerifyCredentials(ctx context.Context, email, password string) (*VerifiedIdentity, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.NewOperationFailed(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return &VerifiedIdentity{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// IssueToken produces a signed, time-bound token for a verified identity.
func (s *IdentityService) IssueToken(identity *VerifiedIdentity) (*TokenResult, error) {
	token, exp, err := s.tokenMgr.GenerateToken(identity.ID, identity.Email, identity.Role)
	if err != nil {
		return nil, apperrors.NewOperationFailed(err)
	}
	return &TokenResult{
		AccessToken: token,
		UserEmail:   identity.Email,
		UserID:      identity.ID,
		ExpiresAt:   exp,
	}, nil
}

// ListUsers returns a page of accounts.
func (s *IdentityService) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	page, limit = normalizePage(page, limit)
	users, total, err := s.users.ListAndCount(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, apperrors.NewOperationFailed(err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return &UserPage{Data: users, Total: total, Page: page, Limit: limit}, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *IdentityService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *IdentityService) publishEvent(ctx context.Context, event events.Event) {
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

// normalizePage coerces page and limit to positive values, falling back to
// the defaults of page 1 and limit 10.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return page, limit
}
