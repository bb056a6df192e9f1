package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kdd-platform/kdd-gateway/internal/session"
)

// fakeSessions implements SessionProvider
type fakeSessions struct {
	store      map[string]*session.Session
	refreshed  *session.Session
	refreshErr error
	refreshes  int
	handled    int
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*session.Session, error) {
	s, ok := f.store[id]
	if !ok {
		return nil, session.ErrNoSession
	}
	return s, nil
}

func (f *fakeSessions) Refresh(ctx context.Context, id string) (*session.Session, error) {
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	f.store[id] = f.refreshed
	return f.refreshed, nil
}

func (f *fakeSessions) HandleSessionError(ctx context.Context, id string) bool {
	f.handled++
	delete(f.store, id)
	return f.handled == 1
}

func liveSession(role string) *session.Session {
	return &session.Session{
		ID:                 "sid",
		UserID:             "user-1",
		Role:               role,
		TenantType:         role,
		AccessToken:        "at",
		AccessTokenExpires: time.Now().Add(10*time.Minute).UnixMilli(),
		ExpiresAt:          time.Now().Add(time.Hour),
	}
}

func authRequest(t *testing.T, f *fakeSessions, path, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	g := gin.New()
	g.Use(AuthMiddleware(f, nil, false))
	g.GET("/:role/dashboard", func(c *gin.Context) {
		s, ok := GetSession(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"role": s.Role})
	})
	g.GET("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: cookie})
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoCookieRedirectsToLogin(t *testing.T) {
	f := &fakeSessions{store: map[string]*session.Session{}}
	rw := authRequest(t, f, "/umkm/dashboard", "")

	require.Equal(t, http.StatusFound, rw.Code)
	require.Equal(t, "/login?redirect=%2Fumkm%2Fdashboard", rw.Header().Get("Location"))
}

func TestAuthMiddleware_UnknownSessionRedirects(t *testing.T) {
	f := &fakeSessions{store: map[string]*session.Session{}}
	rw := authRequest(t, f, "/umkm/dashboard", "missing")

	require.Equal(t, http.StatusFound, rw.Code)
	require.Contains(t, rw.Header().Get("Location"), "/login?redirect=")
}

func TestAuthMiddleware_ValidSessionPasses(t *testing.T) {
	f := &fakeSessions{store: map[string]*session.Session{"sid": liveSession("umkm")}}
	rw := authRequest(t, f, "/umkm/dashboard", "sid")

	require.Equal(t, http.StatusOK, rw.Code)
	require.Zero(t, f.refreshes)
}

func TestAuthMiddleware_ExpiredTokenRefreshesOnce(t *testing.T) {
	stale := liveSession("umkm")
	stale.AccessTokenExpires = time.Now().Add(-time.Minute).UnixMilli()
	f := &fakeSessions{
		store:     map[string]*session.Session{"sid": stale},
		refreshed: liveSession("umkm"),
	}
	rw := authRequest(t, f, "/umkm/dashboard", "sid")

	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, 1, f.refreshes)
}

func TestAuthMiddleware_RefreshFailureLogsOutOnce(t *testing.T) {
	stale := liveSession("umkm")
	stale.AccessTokenExpires = time.Now().Add(-time.Minute).UnixMilli()
	f := &fakeSessions{
		store:      map[string]*session.Session{"sid": stale},
		refreshErr: session.ErrRefreshFailed,
	}
	rw := authRequest(t, f, "/umkm/dashboard", "sid")

	require.Equal(t, http.StatusFound, rw.Code)
	require.Contains(t, rw.Header().Get("Location"), "/login?redirect=")
	require.Equal(t, 1, f.handled)
}

func TestAuthMiddleware_ErroredSessionLogsOut(t *testing.T) {
	bad := liveSession("umkm")
	bad.Error = session.ErrRefreshAccessToken
	f := &fakeSessions{store: map[string]*session.Session{"sid": bad}}
	rw := authRequest(t, f, "/umkm/dashboard", "sid")

	require.Equal(t, http.StatusFound, rw.Code)
	require.Equal(t, 1, f.handled)
	require.Zero(t, f.refreshes)
}

func TestAuthMiddleware_WrongRolePrefixRedirectsToOwnDashboard(t *testing.T) {
	f := &fakeSessions{store: map[string]*session.Session{"sid": liveSession("umkm")}}
	rw := authRequest(t, f, "/koperasi/dashboard", "sid")

	require.Equal(t, http.StatusFound, rw.Code)
	require.Equal(t, "/umkm/dashboard", rw.Header().Get("Location"))
}

func TestAuthMiddleware_AdminPassesAnyPrefix(t *testing.T) {
	f := &fakeSessions{store: map[string]*session.Session{"sid": liveSession("admin")}}
	rw := authRequest(t, f, "/koperasi/dashboard", "sid")

	require.Equal(t, http.StatusOK, rw.Code)
}

func TestAuthMiddleware_PublicPathsSkipped(t *testing.T) {
	f := &fakeSessions{store: map[string]*session.Session{}}
	g := gin.New()
	g.Use(AuthMiddleware(f, nil, false))
	g.GET("/login", func(c *gin.Context) { c.Status(http.StatusOK) })
	g.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/login", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rw := httptest.NewRecorder()
		g.ServeHTTP(rw, req)
		require.Equal(t, http.StatusOK, rw.Code, path)
	}
}

// failVerifier rejects everything
type failVerifier struct{}

func (failVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	return nil, errors.New("bad signature")
}

func TestAuthMiddleware_VerifierRejectionLogsOut(t *testing.T) {
	f := &fakeSessions{store: map[string]*session.Session{"sid": liveSession("umkm")}}
	g := gin.New()
	g.Use(AuthMiddleware(f, failVerifier{}, false))
	g.GET("/umkm/dashboard", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/umkm/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sid"})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)

	require.Equal(t, http.StatusFound, rw.Code)
	require.Equal(t, 1, f.handled)
}

func TestDashboardPath(t *testing.T) {
	require.Equal(t, "/umkm/dashboard", DashboardPath("umkm"))
	require.Equal(t, "/admin/dashboard", DashboardPath("admin"))
	require.Equal(t, "/login", DashboardPath(""))
	require.Equal(t, "/login", DashboardPath("intruder"))
}
