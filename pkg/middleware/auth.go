package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kdd-platform/kdd-gateway/internal/session"
	"github.com/kdd-platform/kdd-gateway/pkg/logger"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// SessionProvider is the slice of the session manager the middleware needs.
type SessionProvider interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	Refresh(ctx context.Context, id string) (*session.Session, error)
	HandleSessionError(ctx context.Context, id string) bool
}

// roles with a dashboard of their own; admin passes any prefix.
var tenantRoles = map[string]bool{
	"umkm":     true,
	"koperasi": true,
	"bumdes":   true,
	"vendor":   true,
	"admin":    true,
}

// ValidRole reports whether the segment names a known dashboard role.
func ValidRole(role string) bool { return tenantRoles[role] }

// DashboardPath returns the dashboard root for a role, the target of
// wrong-prefix redirects and post-login redirects.
func DashboardPath(role string) string {
	if role == "" || !tenantRoles[role] {
		return "/login"
	}
	return "/" + role + "/dashboard"
}

// publicPath lists routes reachable without a session. The API proxy is also
// excluded: it forwards credentials as-is and lets the backend answer 401s.
func publicPath(path string) bool {
	if path == "/login" || path == "/tenant-not-found" || path == "/favicon.ico" {
		return true
	}
	for _, p := range []string{"/auth/", "/api/", "/health", "/ready", "/metrics", "/swagger/", "/static/"} {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func loginRedirect(c *gin.Context) {
	target := "/login?redirect=" + url.QueryEscape(c.Request.URL.Path)
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

// AuthMiddleware loads the session referenced by the session cookie, refreshes
// the access token transparently when its decoded expiry has passed, and
// enforces that the requested path's role prefix matches the session role.
// Must run after the tenant middleware: an unresolvable tenant aborts the
// request before any login check happens.
func AuthMiddleware(sessions SessionProvider, ver Verifier, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if publicPath(path) {
			c.Next()
			return
		}

		sid, err := c.Cookie(session.CookieNameFor(production))
		if err != nil || sid == "" {
			loginRedirect(c)
			return
		}

		s, err := sessions.Get(c.Request.Context(), sid)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				logger.Errorf("session load failed: %v", err)
			}
			loginRedirect(c)
			return
		}

		// an errored session is invalid for new requests: log out once, then
		// send the user back to login
		if !s.Valid() {
			sessions.HandleSessionError(c.Request.Context(), sid)
			loginRedirect(c)
			return
		}

		if s.AccessExpired(time.Now()) {
			s, err = sessions.Refresh(c.Request.Context(), sid)
			if err != nil {
				if errors.Is(err, session.ErrRefreshFailed) {
					sessions.HandleSessionError(c.Request.Context(), sid)
				}
				loginRedirect(c)
				return
			}
		}

		// verified mode: when the backend publishes discovery we check the
		// signature too, not just the decoded expiry
		if ver != nil {
			if _, err := ver.Verify(c.Request.Context(), s.AccessToken); err != nil {
				logger.Warnf("access token failed verification: %v", err)
				sessions.HandleSessionError(c.Request.Context(), sid)
				loginRedirect(c)
				return
			}
		}

		// role prefix enforcement: /umkm/... requires an umkm session
		if seg := firstSegment(path); tenantRoles[seg] && seg != s.Role && s.Role != "admin" {
			c.Redirect(http.StatusFound, DashboardPath(s.Role))
			c.Abort()
			return
		}

		c.Set("session", s)
		c.Next()
	}
}

// GetSession returns the session attached by AuthMiddleware.
func GetSession(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get("session")
	if !ok {
		return nil, false
	}
	s, ok := v.(*session.Session)
	return s, ok
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
