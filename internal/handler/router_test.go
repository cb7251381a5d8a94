package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ClementHansel/fieldtalk/internal/metrics"
	"github.com/ClementHansel/fieldtalk/internal/middleware"
	"github.com/ClementHansel/fieldtalk/internal/model"
)

// --- モック定義 ---

// mockStaffSessionRepo はStaffSessionRepositoryのモック実装。
type mockStaffSessionRepo struct {
	sessions map[string]*model.StaffSession
}

func (m *mockStaffSessionRepo) FindByToken(ctx context.Context, token string) (*model.StaffSession, error) {
	return m.sessions[token], nil
}

// mockProfileRepo はProfileRepositoryのモック実装。
type mockProfileRepo struct {
	profiles map[string]*model.Profile
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return m.profiles[id], nil
}

func (m *mockProfileRepo) DeleteByID(ctx context.Context, id string) error {
	delete(m.profiles, id)
	return nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func newTestRouter(t *testing.T, checker HealthChecker) http.Handler {
	t.Helper()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), nil)
	t.Cleanup(limiter.Stop)

	sessions := &mockStaffSessionRepo{sessions: map[string]*model.StaffSession{
		"staff-token": {Token: "staff-token", ProfileID: "mod-1"},
	}}
	profiles := &mockProfileRepo{profiles: map[string]*model.Profile{
		"mod-1": {ID: "mod-1", Username: "mod", Role: model.RoleModerator},
	}}

	return NewRouter(&RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       limiter,
		StaffSessions:     sessions,
		Profiles:          profiles,
		SessionStore:      &mockSessionStore{},
		Gate:              newAllowedGate("198.51.100.7"),
		ClientIP:          func(*http.Request) string { return "198.51.100.7" },
		ForumService:      &mockForumService{},
		ModerationService: &mockModerationService{},
		StatusSubscriber:  &mockSubscriber{sub: newMockSubscription()},
		StreamRecorder:    collector,
		MetricsGatherer:   reg,
		HealthChecker:     checker,
		OperationTimeout:  5 * time.Second,
	})
}

// --- ルーティングテスト ---

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_Health_BackendDown(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{err: context.DeadlineExceeded})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_EnsureSession(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
	req.Header.Set(sessionTokenHeader, "tok-abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_ModerationRequiresStaffToken(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/api/moderation/pending", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRouter_ModerationWithStaffToken(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/api/moderation/pending", nil)
	req.Header.Set("Authorization", "Bearer staff-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_CORSHeadersApplied(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
	}
}

func TestRouter_StatusEndpoint(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/api/content/topic/topic-1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}
