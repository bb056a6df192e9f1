package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kdd-platform/kdd-gateway/internal/tenant"
)

// TenantResolver is the slice of the tenant resolver the middleware needs.
type TenantResolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

// TenantCookieMaxAge bounds the client-side tenantId cache.
const TenantCookieMaxAge = 7 * 24 * 60 * 60

// tenantSkippedPath lists routes that never need a tenant binding: the API
// proxy (the backend scopes those calls itself), operational endpoints, and
// the tenant-not-found page (otherwise unresolvable domains would loop).
func tenantSkippedPath(path string) bool {
	if path == "/tenant-not-found" || path == "/favicon.ico" {
		return true
	}
	for _, p := range []string{"/api/", "/health", "/ready", "/metrics", "/swagger/", "/static/"} {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// TenantMiddleware attaches exactly one tenant binding per request: the
// tenantId cookie when present, otherwise a backend domain lookup keyed by
// the request Host (cached in a cookie afterwards). Unresolvable tenants are
// redirected to /tenant-not-found before any auth check runs.
func TenantMiddleware(resolver TenantResolver, cookieDomain string, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tenantSkippedPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		binding := tenant.Binding{Domain: tenant.NormalizeHost(c.Request.Host), Source: tenant.SourceCookie}
		if id, err := c.Cookie(tenant.CookieName); err == nil && id != "" {
			binding.TenantID = id
		} else {
			id, err := resolver.Resolve(c.Request.Context(), c.Request.Host)
			if err != nil {
				c.Redirect(http.StatusFound, "/tenant-not-found")
				c.Abort()
				return
			}
			binding.TenantID = id
			binding.Source = tenant.SourceDomainLookup
			// cookie is readable client-side on purpose, so browser code can
			// scope its own calls without another round trip
			c.SetCookie(tenant.CookieName, id, TenantCookieMaxAge, "/", cookieDomain, secure, false)
		}

		c.Set("tenant", binding)
		c.Request.Header.Set("X-Tenant-ID", binding.TenantID)
		c.Header("X-Tenant-ID", binding.TenantID)
		c.Next()
	}
}

// GetTenant returns the binding attached by TenantMiddleware.
func GetTenant(c *gin.Context) (tenant.Binding, bool) {
	v, ok := c.Get("tenant")
	if !ok {
		return tenant.Binding{}, false
	}
	b, ok := v.(tenant.Binding)
	return b, ok
}
