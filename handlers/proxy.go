package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kdd-platform/kdd-gateway/internal/session"
	"github.com/kdd-platform/kdd-gateway/internal/tenant"
	"github.com/kdd-platform/kdd-gateway/pkg/logger"
	"github.com/kdd-platform/kdd-gateway/pkg/metrics"
)

// forwarded headers, inbound and outbound. Everything else stays behind the
// gateway.
var proxyRequestHeaders = []string{"Authorization", "Content-Type", "Cookie"}
var proxyResponseHeaders = []string{"Content-Type", "Content-Disposition"}

// ProxyHandler forwards /api/* calls to the backend verbatim. It does no
// retry or refresh of its own: browser code that gets a 401 back goes through
// the login flow again.
type ProxyHandler struct {
	baseURL    string
	client     *http.Client
	sessions   *session.Manager
	production bool
}

func NewProxyHandler(baseURL string, sessions *session.Manager, production bool) *ProxyHandler {
	return &ProxyHandler{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: 60 * time.Second},
		sessions:   sessions,
		production: production,
	}
}

// Register mounts the catch-all proxy route.
func (h *ProxyHandler) Register(r *gin.Engine) {
	r.Any("/api/*path", h.Forward)
}

// Forward relays one request to ${API_BASE_URL}/api/<path><query>.
func (h *ProxyHandler) Forward(c *gin.Context) {
	target := h.baseURL + "/api/" + strings.TrimPrefix(c.Param("path"), "/")
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bad proxy target"})
		return
	}
	for _, k := range proxyRequestHeaders {
		if v := c.GetHeader(k); v != "" {
			req.Header.Set(k, v)
		}
	}
	// session bearer fallback for browser calls that rely on the cookie
	if req.Header.Get("Authorization") == "" && h.sessions != nil {
		if sid, err := c.Cookie(session.CookieNameFor(h.production)); err == nil && sid != "" {
			if s, err := h.sessions.Get(c.Request.Context(), sid); err == nil && s.Valid() {
				req.Header.Set("Authorization", "Bearer "+s.AccessToken)
			}
		}
	}
	if v := c.GetHeader("X-Tenant-ID"); v != "" {
		req.Header.Set("X-Tenant-ID", v)
	} else if id, err := c.Cookie(tenant.CookieName); err == nil && id != "" {
		req.Header.Set("X-Tenant-ID", id)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		logger.Warnf("proxy %s %s failed: %v", c.Request.Method, target, err)
		metrics.ProxiedRequests.WithLabelValues(c.Request.Method, "error").Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unreachable"})
		return
	}
	defer resp.Body.Close()

	metrics.ProxiedRequests.WithLabelValues(c.Request.Method, statusClass(resp.StatusCode)).Inc()

	for _, k := range proxyResponseHeaders {
		if v := resp.Header.Get(k); v != "" {
			c.Header(k, v)
		}
	}
	// relay Set-Cookie so backend-issued cookies reach the browser
	for _, sc := range resp.Header.Values("Set-Cookie") {
		c.Writer.Header().Add("Set-Cookie", sc)
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		logger.Debugf("proxy body copy interrupted: %v", err)
	}
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
