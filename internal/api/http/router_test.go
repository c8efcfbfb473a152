package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/issue-tracker/internal/api/http/handlers"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/persistence"
	"github.com/spec-kit/issue-tracker/internal/repository"
	"github.com/spec-kit/issue-tracker/internal/service"
)

type memUserRepo struct {
	users map[string]*domain.User
	seq   int
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.seq++
	user.ID = fmt.Sprintf("user-%d", r.seq)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := r.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) ListAndCount(_ context.Context, limit, offset int) ([]domain.User, int64, error) {
	all := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
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

type memIssueRepo struct {
	issues []domain.Issue
	seq    int
	clock  time.Time
}

func (r *memIssueRepo) Create(_ context.Context, issue *domain.Issue) error {
	r.seq++
	r.clock = r.clock.Add(time.Second)
	issue.ID = fmt.Sprintf("issue-%d", r.seq)
	issue.CreatedAt = r.clock
	issue.UpdatedAt = r.clock
	r.issues = append(r.issues, *issue)
	return nil
}

func (r *memIssueRepo) Update(_ context.Context, issue *domain.Issue) error {
	for i := range r.issues {
		if r.issues[i].ID == issue.ID {
			r.clock = r.clock.Add(time.Second)
			issue.UpdatedAt = r.clock
			r.issues[i] = *issue
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *memIssueRepo) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	for i := range r.issues {
		if r.issues[i].ID == id {
			clone := r.issues[i]
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memIssueRepo) ListAndCount(_ context.Context, filter repository.IssueFilter) ([]domain.Issue, int64, error) {
	matched := make([]domain.Issue, 0, len(r.issues))
	for _, issue := range r.issues {
		if filter.OwnerID != nil && issue.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.SearchTerm != nil {
			term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
			if !strings.Contains(strings.ToLower(issue.Title), term) &&
				!strings.Contains(strings.ToLower(string(issue.Status)), term) &&
				!strings.Contains(strings.ToLower(string(issue.Priority)), term) {
				continue
			}
		}
		matched = append(matched, issue)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset >= len(matched) {
		return []domain.Issue{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	cfg := config.Config{
		App: config.AppConfig{Name: "issue-tracker-test", Version: "test"},
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            bcrypt.MinCost,
		},
	}
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	userRepo := &memUserRepo{users: make(map[string]*domain.User)}
	issueRepo := &memIssueRepo{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	identityService := service.NewIdentityService(cfg, service.IdentityDependencies{UserRepo: userRepo})
	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo: issueRepo,
		UserRepo:  userRepo,
	})

	app := fiber.New()
	RegisterMiddlewares(app, cfg.App, logger, metrics)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, &persistence.Postgres{}, &persistence.Redis{}),
		Users:          handlers.NewUsersHandler(identityService),
		Auth:           handlers.NewAuthHandler(identityService),
		Issues:         handlers.NewIssuesHandler(issueService),
		AuthMiddleware: auth.NewAuthMiddleware(identityService.TokenManager()),
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	decoded := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	return resp, decoded
}

func register(t *testing.T, app *fiber.App, email, password string, role domain.Role) map[string]any {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/user", "", map[string]any{
		"email":    email,
		"password": password,
		"role":     role,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d (%v)", email, resp.StatusCode, body)
	}
	return body
}

func login(t *testing.T, app *fiber.App, email, password string) string {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (%v)", email, resp.StatusCode, body)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("login %s: no access_token in %v", email, body)
	}
	return token
}

func TestRegister_ReturnsUserWithoutSecret(t *testing.T) {
	app := newTestApp(t)

	body := register(t, app, "alice@example.com", "pass123", "")
	if body["message"] != "User Create Successfully" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
	data, _ := body["data"].(map[string]any)
	if data["email"] != "alice@example.com" || data["role"] != "GUEST" {
		t.Fatalf("unexpected data: %v", data)
	}
	if _, leaked := data["password"]; leaked {
		t.Fatalf("password leaked in response")
	}
	if _, leaked := data["passwordHash"]; leaked {
		t.Fatalf("password hash leaked in response")
	}
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	app := newTestApp(t)

	register(t, app, "alice@example.com", "pass123", "")
	resp, body := doJSON(t, app, http.MethodPost, "/user", "", map[string]any{
		"email":    "alice@example.com",
		"password": "other",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	app := newTestApp(t)

	register(t, app, "alice@example.com", "pass123", "")
	resp, body := doJSON(t, app, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body)
	}
}

func TestIssueRoutes_RequireAuthentication(t *testing.T) {
	app := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/isssue", "", map[string]any{"title": "Bug"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestUserList_AdminOnly(t *testing.T) {
	app := newTestApp(t)

	register(t, app, "guest@example.com", "pass", domain.RoleGuest)
	register(t, app, "admin@example.com", "pass", domain.RoleAdmin)
	guestToken := login(t, app, "guest@example.com", "pass")
	adminToken := login(t, app, "admin@example.com", "pass")

	resp, _ := doJSON(t, app, http.MethodGet, "/user/list", guestToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("guest: expected 403, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, app, http.MethodGet, "/user/list", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", resp.StatusCode)
	}
	data, _ := body["data"].(map[string]any)
	if data["total"] != float64(2) {
		t.Fatalf("expected total 2, got %v", data["total"])
	}
}

func TestIssueLifecycle(t *testing.T) {
	app := newTestApp(t)

	register(t, app, "u1@example.com", "pass", domain.RoleGuest)
	token := login(t, app, "u1@example.com", "pass")

	// create defaults to OPEN / MEDIUM
	resp, body := doJSON(t, app, http.MethodPost, "/isssue", token, map[string]any{"title": "Bug A"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%v)", resp.StatusCode, body)
	}
	if body["success"] != true || body["message"] != "Issue Created" {
		t.Fatalf("unexpected envelope: %v", body)
	}
	issue, _ := body["data"].(map[string]any)
	if issue["status"] != "OPEN" || issue["priority"] != "MEDIUM" {
		t.Fatalf("unexpected defaults: %v", issue)
	}
	issueID, _ := issue["id"].(string)

	// partial update touches only the description
	resp, body = doJSON(t, app, http.MethodPut, "/isssue/"+issueID, token, map[string]any{"description": "new"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	updated, _ := body["data"].(map[string]any)
	if updated["description"] != "new" || updated["title"] != "Bug A" || updated["status"] != "OPEN" {
		t.Fatalf("unexpected patch result: %v", updated)
	}

	// resolve, then an invalid target
	resp, body = doJSON(t, app, http.MethodPatch, "/isssue/"+issueID+"/status", token, map[string]any{"status": "RESOLVED"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["message"] != "Issue marked as Resolved" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
	resolved, _ := body["data"].(map[string]any)
	if resolved["status"] != "RESOLVED" {
		t.Fatalf("expected RESOLVED, got %v", resolved["status"])
	}

	resp, body = doJSON(t, app, http.MethodPatch, "/isssue/"+issueID+"/status", token, map[string]any{"status": "OPEN"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid target: expected 400, got %d", resp.StatusCode)
	}
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body)
	}

	// fetch by id still works for any authenticated caller
	resp, body = doJSON(t, app, http.MethodGet, "/isssue/"+issueID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	if body["message"] != "Issue Found" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
}

func TestIssueList_VisibilityAndSearch(t *testing.T) {
	app := newTestApp(t)

	register(t, app, "u1@example.com", "pass", domain.RoleGuest)
	register(t, app, "u2@example.com", "pass", domain.RoleGuest)
	register(t, app, "admin@example.com", "pass", domain.RoleAdmin)
	u1 := login(t, app, "u1@example.com", "pass")
	u2 := login(t, app, "u2@example.com", "pass")
	admin := login(t, app, "admin@example.com", "pass")

	doJSON(t, app, http.MethodPost, "/isssue", u1, map[string]any{"title": "Bug A"})
	doJSON(t, app, http.MethodPost, "/isssue", u1, map[string]any{"title": "Feature", "priority": "HIGH"})
	doJSON(t, app, http.MethodPost, "/isssue", u2, map[string]any{"title": "Bug B"})

	_, body := doJSON(t, app, http.MethodGet, "/isssue", u1, nil)
	data, _ := body["data"].(map[string]any)
	if data["total"] != float64(2) {
		t.Fatalf("u1 should see 2 issues, got %v", data["total"])
	}

	_, body = doJSON(t, app, http.MethodGet, "/isssue", admin, nil)
	data, _ = body["data"].(map[string]any)
	if data["total"] != float64(3) {
		t.Fatalf("admin should see 3 issues, got %v", data["total"])
	}

	// search is owner-scoped for non-admins: "bug" matches title only
	_, body = doJSON(t, app, http.MethodGet, "/isssue?search=bug", u1, nil)
	data, _ = body["data"].(map[string]any)
	if data["total"] != float64(1) {
		t.Fatalf(`u1 search "bug" should match 1 issue, got %v`, data["total"])
	}
	items, _ := data["data"].([]any)
	first, _ := items[0].(map[string]any)
	if first["title"] != "Bug A" {
		t.Fatalf(`expected "Bug A", got %v`, first["title"])
	}

	// non-numeric pagination falls back to defaults
	_, body = doJSON(t, app, http.MethodGet, "/isssue?page=abc&limit=-1", admin, nil)
	data, _ = body["data"].(map[string]any)
	if data["page"] != float64(1) || data["limit"] != float64(10) {
		t.Fatalf("expected page=1 limit=10, got page=%v limit=%v", data["page"], data["limit"])
	}
}
