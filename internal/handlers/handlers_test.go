package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"ghostworks/api/internal/audit"
	"ghostworks/api/internal/config"
	"ghostworks/api/internal/middleware"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/repository/memory"
)

const password = "Sup3r-Secret!"

type testServer struct {
	engine *gin.Engine
	redis  *miniredis.Miniredis
	client *redis.Client
}

func testConfig(authPerMinute int) *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		Redis:       config.RedisConfig{OpTimeout: time.Second},
		Postgres:    config.PostgresConfig{TenantRole: "tenant_app", QueryTimeout: time.Second},
		Security: config.SecurityConfig{
			JWTAccessSecret:   "handlers-access-secret-handlers-access",
			JWTRefreshSecret:  "handlers-refresh-secret-handlers-refresh",
			JWTAccessTTL:      15 * time.Minute,
			JWTRefreshTTL:     24 * time.Hour,
			ClockSkew:         5 * time.Second,
			CheckRevocation:   true,
			PasswordMinLength: 8,
			Argon2Time:        1,
			Argon2Memory:      1024,
			Argon2Threads:     1,
		},
		Cookies:   config.CookieConfig{RefreshPath: "/api/v1/auth/refresh"},
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1000, AuthRequestsPerMinute: authPerMinute},
		Worker:    config.WorkerConfig{Stream: "auth:events"},
	}
}

func newTestServer(t *testing.T, cfg *config.AppConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := memory.New()
	hs, err := newHandlerSet(zerolog.Nop(), nil, client, cfg, Stores{
		Users:       db.Users(),
		Tenants:     db.Tenants(),
		Memberships: db.Memberships(),
	})
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(middleware.RequestID(true))
	hs.Register(engine.Group("/api"))
	return &testServer{engine: engine, redis: mr, client: client}
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	cookies []*http.Cookie
}

func (s *testServer) do(t *testing.T, r request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var body map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w, body
}

func (s *testServer) register(t *testing.T, email string) map[string]any {
	t.Helper()
	w, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{
		"email":    email,
		"password": password,
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body
}

// deniedReasons returns the reason of every denied decision on the audit
// stream, oldest first.
func (s *testServer) deniedReasons(t *testing.T) []string {
	t.Helper()
	entries, err := s.client.XRange(context.Background(), "auth:events", "-", "+").Result()
	require.NoError(t, err)

	var reasons []string
	for _, e := range entries {
		raw, ok := e.Values["event"].(string)
		require.True(t, ok)
		ev, err := audit.Decode(raw)
		require.NoError(t, err)
		if ev.Outcome == models.AuditDenied {
			reasons = append(reasons, ev.Reason)
		}
	}
	return reasons
}

func cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestWorkspaceFlow(t *testing.T) {
	s := newTestServer(t, testConfig(1000))

	alice := s.register(t, "alice@example.com")
	aliceToken := alice["accessToken"].(string)
	require.Nil(t, alice["workspace"])

	// no workspace selected yet
	w, body := s.do(t, request{method: http.MethodGet, path: "/api/v1/workspace", token: aliceToken})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "no_active_workspace", body["error"])

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/workspaces", token: aliceToken, body: map[string]string{"name": "Acme Corp"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "acme-corp", body["slug"])
	require.Equal(t, "owner", body["role"])
	workspaceID := body["id"].(string)

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/workspaces/" + workspaceID + "/switch", token: aliceToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	workspace := body["workspace"].(map[string]any)
	require.Equal(t, workspaceID, workspace["id"])
	require.Equal(t, "owner", workspace["role"])
	scopedToken := body["accessToken"].(string)
	require.NotNil(t, cookie(w, "access_token"))
	refresh := cookie(w, refreshCookie)
	require.NotNil(t, refresh)
	require.True(t, refresh.HttpOnly)
	require.Equal(t, "/api/v1/auth/refresh", refresh.Path)

	w, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/workspace", token: scopedToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, workspaceID, body["id"])

	// switching retired the unscoped lineage
	w, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", token: aliceToken})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", token: scopedToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "alice@example.com", body["user"].(map[string]any)["email"])

	w, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/workspaces", token: scopedToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["workspaces"], 1)

	// the audit stream received the guard decisions
	entries, err := s.redis.Stream("auth:events")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestMemberManagement(t *testing.T) {
	s := newTestServer(t, testConfig(1000))

	alice := s.register(t, "alice@example.com")
	bob := s.register(t, "bob@example.com")
	aliceToken := alice["accessToken"].(string)
	bobToken := bob["accessToken"].(string)
	aliceID := alice["user"].(map[string]any)["id"].(string)
	bobID := bob["user"].(map[string]any)["id"].(string)

	_, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/workspaces", token: aliceToken, body: map[string]string{"name": "Team", "slug": "team"}})
	base := "/api/v1/workspaces/" + body["id"].(string)

	// bob is not a member yet and learns nothing about the workspace
	w, body := s.do(t, request{method: http.MethodGet, path: base, token: bobToken})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "workspace not found", body["message"])

	w, body = s.do(t, request{method: http.MethodPost, path: base + "/members", token: aliceToken, body: map[string]string{"email": "bob@example.com", "role": "member"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "member", body["role"])

	w, _ = s.do(t, request{method: http.MethodPost, path: base + "/members", token: aliceToken, body: map[string]string{"email": "bob@example.com", "role": "member"}})
	require.Equal(t, http.StatusConflict, w.Code)

	w, body = s.do(t, request{method: http.MethodGet, path: base + "/members", token: bobToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["members"], 2)

	w, body = s.do(t, request{method: http.MethodPut, path: base, token: bobToken, body: map[string]string{"name": "Hijacked"}})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "insufficient_permissions", body["error"])
	require.Equal(t, "admin", body["required"])
	require.Equal(t, "member", body["actual"])

	w, body = s.do(t, request{method: http.MethodPut, path: base + "/members/" + aliceID + "/role", token: bobToken, body: map[string]string{"role": "member"}})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "insufficient_privilege", body["error"])

	w, body = s.do(t, request{method: http.MethodPut, path: base + "/members/" + aliceID + "/role", token: aliceToken, body: map[string]string{"role": "admin"}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "last_owner_protected", body["error"])

	w, body = s.do(t, request{method: http.MethodPut, path: base, token: aliceToken, body: map[string]any{"settings": map[string]any{"theme": "dark"}}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "dark", body["settings"].(map[string]any)["theme"])

	w, _ = s.do(t, request{method: http.MethodDelete, path: base + "/members/" + bobID, token: aliceToken})
	require.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(t, request{method: http.MethodGet, path: base + "/members", token: bobToken})
	require.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(t, request{method: http.MethodDelete, path: base + "/members/" + aliceID, token: aliceToken})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "self_removal_by_last_owner", body["error"])

	w, _ = s.do(t, request{method: http.MethodDelete, path: base, token: aliceToken})
	require.Equal(t, http.StatusNoContent, w.Code)

	require.Equal(t, []string{
		"not_a_member",
		"insufficient_permissions",
		"insufficient_privilege",
		"last_owner_protected",
		"not_a_member",
		"self_removal_by_last_owner",
	}, s.deniedReasons(t))
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t, testConfig(1000))

	w, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{"email": "carol@example.com", "password": password}})
	require.Equal(t, http.StatusCreated, w.Code)
	first := cookie(w, refreshCookie)

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/refresh", cookies: []*http.Cookie{first}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	second := body["refreshToken"].(string)
	access := body["accessToken"].(string)

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/refresh", cookies: []*http.Cookie{first}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "token_reused", body["error"])

	// reuse revoked the whole lineage
	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/refresh", body: map[string]string{"refreshToken": second}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", token: access})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"email": "carol@example.com", "password": password}})
	require.Equal(t, http.StatusOK, w.Code)
	access = body["accessToken"].(string)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/logout", token: access})
	require.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", token: access})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"email": "carol@example.com", "password": "Wrong-Passw0rd!"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "invalid_credentials", body["error"])

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/refresh"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEmailVerification(t *testing.T) {
	s := newTestServer(t, testConfig(1000))

	erin := s.register(t, "erin@example.com")
	frank := s.register(t, "frank@example.com")
	erinToken := erin["accessToken"].(string)
	frankToken := frank["accessToken"].(string)
	require.Equal(t, false, erin["user"].(map[string]any)["isVerified"])

	w, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/verify-email/request", token: erinToken})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	verification := body["verificationToken"].(string)
	require.NotEmpty(t, body["expiresAt"])

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/verify-email", token: frankToken, body: map[string]string{"token": verification}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "token_invalid", body["error"])

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/verify-email", token: erinToken, body: map[string]string{}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/verify-email", token: erinToken, body: map[string]string{"token": verification}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "email verified", body["message"])

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/verify-email", token: erinToken, body: map[string]string{"token": verification}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["alreadyVerified"])

	w, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", token: erinToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["user"].(map[string]any)["isVerified"])

	w, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", token: frankToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, body["user"].(map[string]any)["isVerified"])
}

func TestVerificationTokenHiddenOutsideDevelopment(t *testing.T) {
	cfg := testConfig(1000)
	cfg.Environment = "production"
	s := newTestServer(t, cfg)

	gina := s.register(t, "gina@example.com")
	w, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/verify-email/request", token: gina["accessToken"].(string)})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.NotContains(t, body, "verificationToken")
	require.NotContains(t, body, "expiresAt")
}

func TestDeactivateAccount(t *testing.T) {
	s := newTestServer(t, testConfig(1000))

	hank := s.register(t, "hank@example.com")
	token := hank["accessToken"].(string)

	_, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/workspaces", token: token, body: map[string]string{"name": "Solo", "slug": "solo"}})
	workspace := "/api/v1/workspaces/" + body["id"].(string)

	w, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/deactivate", token: token, body: map[string]string{"password": "Wrong-Passw0rd!"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "invalid_credentials", body["error"])

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/deactivate", token: token, body: map[string]string{"password": password}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "last_owner_protected", body["error"])

	w, _ = s.do(t, request{method: http.MethodDelete, path: workspace, token: token})
	require.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/deactivate", token: token, body: map[string]string{"password": password}})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	cleared := cookie(w, refreshCookie)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)

	// the session ended with the account
	w, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", token: token})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"email": "hank@example.com", "password": password}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "invalid_credentials", body["error"])
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t, testConfig(1000))

	w, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{"email": "dave@example.com", "password": "password"}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "weak_password", body["error"])
	require.NotEmpty(t, body["reason"])

	s.register(t, "dave@example.com")
	w, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{"email": "DAVE@example.com", "password": password}})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "duplicate_email", body["error"])

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{"email": "not-an-email", "password": password}})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthRateLimit(t *testing.T) {
	s := newTestServer(t, testConfig(2))

	for i := 0; i < 2; i++ {
		w, _ := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"email": "x@example.com", "password": password}})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{"email": "x@example.com", "password": password}})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "rate_limited", body["error"])
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig(1000))

	w, body := s.do(t, request{method: http.MethodGet, path: "/api/healthz"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "disabled", body["database"])
	require.Equal(t, "ok", body["cache"])
}
