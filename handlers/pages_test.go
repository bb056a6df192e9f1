package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kdd-platform/kdd-gateway/internal/backend"
	"github.com/kdd-platform/kdd-gateway/internal/session"
)

func newPageTestRouter(t *testing.T, backendURL string, s *session.Session) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := session.NewMemoryRepository()
	sessions := session.NewManager(nil, repo, time.Hour)
	api := backend.NewClient(backendURL)

	r := gin.New()
	if s != nil {
		if s.ExpiresAt.IsZero() {
			s.ExpiresAt = time.Now().Add(time.Hour)
		}
		require.NoError(t, repo.Save(context.Background(), s))
		r.Use(func(c *gin.Context) { c.Set("session", s) })
	}
	NewPageHandler(api, sessions).Register(r)
	return r
}

func TestPages_RootRedirectsAnonymousToLogin(t *testing.T) {
	r := newPageTestRouter(t, "http://backend.invalid", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login", w.Header().Get("Location"))
}

func TestPages_RootRedirectsSessionToDashboard(t *testing.T) {
	r := newPageTestRouter(t, "http://backend.invalid", &session.Session{ID: "s1", Role: "koperasi"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/koperasi/dashboard", w.Header().Get("Location"))
}

func TestPages_TenantNotFoundPage(t *testing.T) {
	r := newPageTestRouter(t, "http://backend.invalid", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenant-not-found", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "Tenant untuk domain ini tidak ditemukan")
}

func TestPages_DashboardUnknownRoleIs404(t *testing.T) {
	r := newPageTestRouter(t, "http://backend.invalid", &session.Session{ID: "s1", Role: "umkm"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pirates/dashboard", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPages_DashboardIncludesBackendSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/reports/summary", req.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"omzet":1500000}}`)
	}))
	defer srv.Close()

	r := newPageTestRouter(t, srv.URL, &session.Session{ID: "s1", Role: "umkm", AccessToken: "at"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/umkm/dashboard", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"omzet":1500000`)
	require.Contains(t, w.Body.String(), `"page":"umkm-dashboard"`)
}

func TestPages_DashboardDegradesWithoutBackend(t *testing.T) {
	r := newPageTestRouter(t, "http://127.0.0.1:1", &session.Session{ID: "s1", Role: "umkm"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/umkm/dashboard", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"summary":null`)
}
