package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/domain"
	apperrors "github.com/spec-kit/issue-tracker/pkg/util/errorutil"
)

type stubUserRepo struct {
	users map[string]*domain.User
	seq   int
	fail  error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) error {
	if r.fail != nil {
		return r.fail
	}
	r.seq++
	user.ID = fmt.Sprintf("user-%d", r.seq)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if r.fail != nil {
		return nil, r.fail
	}
	if u, ok := r.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, pgx.ErrNoRows
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if r.fail != nil {
		return nil, r.fail
	}
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubUserRepo) ListAndCount(_ context.Context, limit, offset int) ([]domain.User, int64, error) {
	if r.fail != nil {
		return nil, 0, r.fail
	}
	all := make([]domain.User, 0, len(r.users))
	for i := 1; i <= r.seq; i++ {
		if u, ok := r.users[fmt.Sprintf("user-%d", i)]; ok {
			all = append(all, *cloneUser(u))
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return []domain.User{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            bcrypt.MinCost,
		},
	}
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var de *apperrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return de.Code
}

func TestIdentityService_Register_HashesPassword(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewIdentityService(testConfig(), IdentityDependencies{UserRepo: repo})

	user, err := svc.Register(context.Background(), "alice@example.com", "pass123", "")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Role != domain.RoleGuest {
		t.Fatalf("expected default role GUEST, got %s", user.Role)
	}
	if user.PasswordHash != "" {
		t.Fatalf("returned user must not carry the hash")
	}

	stored := repo.users[user.ID]
	if stored.PasswordHash == "pass123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pass123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestIdentityService_Register_UnknownRole(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewIdentityService(testConfig(), IdentityDependencies{UserRepo: repo})

	_, err := svc.Register(context.Background(), "bob@example.com", "pass", "SUPERUSER")
	if code := domainCode(t, err); code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %s", code)
	}
}

func TestIdentityService_Register_DuplicateEmail(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewIdentityService(testConfig(), IdentityDependencies{UserRepo: repo})

	if _, err := svc.Register(context.Background(), "bob@example.com", "pass", domain.RoleGuest); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := svc.Register(context.Background(), "bob@example.com", "other", domain.RoleAdmin)
	if code := domainCode(t, err); code != "CONFLICT" {
		t.Fatalf("expected CONFLICT, got %s", code)
	}
}

func TestIdentityService_VerifyCredentials(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewIdentityService(testConfig(), IdentityDependencies{UserRepo: repo})

	if _, err := svc.Register(context.Background(), "carol@example.com", "s3cret", domain.RoleAdmin); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	identity, err := svc.VerifyCredentials(context.Background(), "carol@example.com", "s3cret")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if identity.Email != "carol@example.com" || identity.Role != domain.RoleAdmin {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	// wrong password and unknown email are the same failure
	_, wrongPass := svc.VerifyCredentials(context.Background(), "carol@example.com", "nope")
	_, unknown := svc.VerifyCredentials(context.Background(), "missing@example.com", "s3cret")
	if domainCode(t, wrongPass) != "UNAUTHORIZED" || domainCode(t, unknown) != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED for both failures, got %v / %v", wrongPass, unknown)
	}
}

func TestIdentityService_IssueToken_Claims(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewIdentityService(testConfig(), IdentityDependencies{UserRepo: repo})

	user, err := svc.Register(context.Background(), "dave@example.com", "pass", domain.RoleGuest)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	token, err := svc.IssueToken(&VerifiedIdentity{ID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	if token.UserID != user.ID || token.UserEmail != user.Email {
		t.Fatalf("unexpected token subject: %+v", token)
	}

	claims, err := svc.TokenManager().ParseToken(token.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.Subject != user.ID || claims.Email != user.Email || claims.Role != domain.RoleGuest {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestIdentityService_ListUsers_ScrubsHashes(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewIdentityService(testConfig(), IdentityDependencies{UserRepo: repo})

	for i := 0; i < 3; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		if _, err := svc.Register(context.Background(), email, "pass", domain.RoleGuest); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}

	page, err := svc.ListUsers(context.Background(), 0, -5)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Page != 1 || page.Limit != 10 {
		t.Fatalf("expected coerced defaults 1/10, got %d/%d", page.Page, page.Limit)
	}
	if page.Total != 3 || len(page.Data) != 3 {
		t.Fatalf("expected 3 users, got total=%d len=%d", page.Total, len(page.Data))
	}
	for _, u := range page.Data {
		if u.PasswordHash != "" {
			t.Fatalf("hash leaked for %s", u.Email)
		}
	}
}
