package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitness-crm/middleware"
)

func testDeps(repoErr error) Deps {
	return Deps{
		Repo:         &fakeRepo{fakePinger: fakePinger{err: repoErr}},
		Cache:        fakePinger{},
		Auth:         &fakeAuth{},
		Cookie:       testCookie,
		LoginLimiter: middleware.NewIPRateLimiter(2, 0),
		Memberships:  &fakeRegistrar{},
		Campaigns:    &fakeDispatcher{},
		Previewer:    fakePreviewer{},
		Statistics:   &fakeStatistics{},
		Version:      "test",
		Log:          quietLogger(),
	}
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterHealth(t *testing.T) {
	w := get(NewRouter(testDeps(nil)), "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = get(NewRouter(testDeps(errBoom)), "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"unavailable"`)
}

func TestRouterGuardsRoutes(t *testing.T) {
	r := NewRouter(testDeps(nil))

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/statistics/dashboard", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/statistics/dashboard", "stale").Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/api/v1/statistics/dashboard", "viewer-token").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/statistics/dashboard", "signed-token").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/auth/session", "viewer-token").Code)
}

func TestRouterLimitsLogins(t *testing.T) {
	r := NewRouter(testDeps(nil))
	body := map[string]any{"username": "admin", "password": "wrong"}

	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodPost, "/api/v1/auth/login", body).Code)
	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodPost, "/api/v1/auth/login", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, doJSON(r, http.MethodPost, "/api/v1/auth/login", body).Code)
}

func TestRouterServesMetrics(t *testing.T) {
	w := get(NewRouter(testDeps(nil)), "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
