package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kdd-platform/kdd-gateway/internal/backend"
	"github.com/kdd-platform/kdd-gateway/internal/session"
	"github.com/kdd-platform/kdd-gateway/pkg/logger"
	"github.com/kdd-platform/kdd-gateway/pkg/middleware"
)

// PageHandler serves the few routes the gateway renders itself. Everything
// data-heavy lives behind /api and the backend.
type PageHandler struct {
	api      *backend.Client
	sessions *session.Manager
}

func NewPageHandler(api *backend.Client, sessions *session.Manager) *PageHandler {
	return &PageHandler{api: api, sessions: sessions}
}

func (h *PageHandler) Register(r *gin.Engine) {
	r.GET("/", h.Root)
	r.GET("/login", h.LoginPage)
	r.GET("/tenant-not-found", h.TenantNotFound)
	r.GET("/:role/dashboard", h.Dashboard)
}

// Root sends authenticated users to their dashboard and everyone else to
// login.
func (h *PageHandler) Root(c *gin.Context) {
	if s, ok := middleware.GetSession(c); ok {
		c.Redirect(http.StatusFound, middleware.DashboardPath(dashboardRole(s)))
		return
	}
	c.Redirect(http.StatusFound, "/login")
}

func (h *PageHandler) LoginPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"page":     "login",
		"redirect": c.Query("redirect"),
	})
}

func (h *PageHandler) TenantNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"page":  "tenant-not-found",
		"error": "Tenant untuk domain ini tidak ditemukan",
	})
}

// Dashboard is the landing page per role. The summary block is fetched from
// the backend with the request's session; a failed fetch degrades to an
// empty summary rather than an error page.
func (h *PageHandler) Dashboard(c *gin.Context) {
	role := c.Param("role")
	if !middleware.ValidRole(role) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s, ok := middleware.GetSession(c)
	if !ok {
		// auth middleware should have redirected already
		c.Redirect(http.StatusFound, "/login")
		return
	}

	var summary json.RawMessage
	binding, _ := middleware.GetTenant(c)
	api := h.api.WithTokens(h.sessions.TokenSource(s.ID))
	resp, err := api.Get(c.Request.Context(), "/reports/summary", &backend.RequestOptions{TenantID: binding.TenantID})
	if err != nil {
		logger.Debugf("dashboard summary fetch failed: %v", err)
	} else if resp.IsJSON() {
		summary = append(json.RawMessage(nil), resp.Body...)
	}

	c.JSON(http.StatusOK, gin.H{
		"page":    role + "-dashboard",
		"session": viewOf(s),
		"tenant":  binding,
		"summary": summary,
	})
}
