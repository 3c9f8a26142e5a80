package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"choraid-server/config"
	"choraid-server/database"
	"choraid-server/models"
	"choraid-server/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	VerifyFunc func(ctx context.Context, token string) (*services.Identity, error)
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (*services.Identity, error) {
	return f.VerifyFunc(ctx, token)
}

func newAuthenticator(t *testing.T, verifier services.IdentityVerifier) (*Authenticator, *services.JWTService, *models.Profile) {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", URL: ":memory:", LogLevel: "silent"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	p := &models.Profile{FullName: "Carla", Email: "carla@example.com", Role: models.RoleClient, IsActive: true}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	js := services.NewJWTService(db, config.JWTConfig{Secret: "test-secret", ExpiryHours: 1, RefreshDays: 1, Issuer: "test"})
	return NewAuthenticator(services.NewAuthService(db, js), js, verifier), js, p
}

func whoami(c *gin.Context) {
	p := CurrentProfile(c)
	c.String(http.StatusOK, fmt.Sprintf("%d:%s", p.ID, p.Role))
}

func get(r http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	auth, js, p := newAuthenticator(t, nil)
	pair, err := js.GenerateTokenPair(context.Background(), p, services.ClientMeta{})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	r := gin.New()
	r.GET("/me", auth.AuthMiddleware(), whoami)
	r.GET("/admin", auth.AuthMiddleware(), RequireRole(models.RoleAdmin), whoami)

	if w := get(r, "/me", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}
	if w := get(r, "/me", "garbage"); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", w.Code)
	}
	w := get(r, "/me", pair.AccessToken)
	if w.Code != http.StatusOK || w.Body.String() != fmt.Sprintf("%d:client", p.ID) {
		t.Fatalf("valid token: %d %s", w.Code, w.Body)
	}
	if w := get(r, "/admin", pair.AccessToken); w.Code != http.StatusForbidden {
		t.Fatalf("client on admin route: %d", w.Code)
	}
}

func TestAuthMiddlewareFallsBackToVerifier(t *testing.T) {
	verifier := &fakeVerifier{VerifyFunc: func(_ context.Context, token string) (*services.Identity, error) {
		if token != "hosted-token" {
			return nil, services.ErrUnauthorized
		}
		return &services.Identity{ProviderID: "sb-1", Email: "carla@example.com", EmailConfirmed: true}, nil
	}}
	auth, _, p := newAuthenticator(t, verifier)

	r := gin.New()
	r.GET("/me", auth.AuthMiddleware(), whoami)

	w := get(r, "/me", "hosted-token")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), fmt.Sprint(p.ID)) {
		t.Fatalf("hosted token: %d %s", w.Code, w.Body)
	}
	if w := get(r, "/me", "other"); w.Code != http.StatusUnauthorized {
		t.Fatalf("rejected hosted token: %d", w.Code)
	}
}

func TestWebSocketAuthReadsQuery(t *testing.T) {
	auth, js, p := newAuthenticator(t, nil)
	pair, err := js.GenerateTokenPair(context.Background(), p, services.ClientMeta{})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	r := gin.New()
	r.GET("/ws", auth.WebSocketAuthMiddleware(), whoami)

	if w := get(r, "/ws", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", w.Code)
	}
	if w := get(r, "/ws?token="+pair.AccessToken, ""); w.Code != http.StatusOK {
		t.Fatalf("query token: %d", w.Code)
	}
}

func TestRequireRoleWithoutProfile(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireRole(models.RoleClient), whoami)
	if w := get(r, "/x", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", w.Code)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer  abc ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v", tt.header, got, ok)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.GetLimiterWithConfig("old", 1, 1)
	now = now.Add(90 * time.Minute)
	rl.GetLimiterWithConfig("fresh", 1, 1)

	if n := rl.Cleanup(); n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	if rl.Len() != 1 {
		t.Fatalf("len = %d", rl.Len())
	}
}

func TestAuthRateLimit(t *testing.T) {
	rl := NewRateLimiter()
	r := gin.New()
	r.POST("/login", rl.AuthRateLimitMiddleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		codes = append(codes, w.Code)
	}
	if codes[4] != http.StatusNoContent || codes[5] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := get(r, "/", "")
	generated := w.Header().Get("X-Request-ID")
	if generated == "" || w.Body.String() != generated {
		t.Fatalf("generated id %q, body %q", generated, w.Body)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") != "req-42" {
		t.Fatalf("propagated id = %q", w.Header().Get("X-Request-ID"))
	}
}

func TestInputValidationMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(InputValidationMiddleware(16))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(body, contentType string) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(`{}`, "application/json"); code != http.StatusNoContent {
		t.Fatalf("json: %d", code)
	}
	if code := send(`a=b`, "application/x-www-form-urlencoded"); code != http.StatusUnsupportedMediaType {
		t.Fatalf("form: %d", code)
	}
	if code := send(strings.Repeat("x", 32), "application/json"); code != http.StatusRequestEntityTooLarge {
		t.Fatalf("large body: %d", code)
	}
}
