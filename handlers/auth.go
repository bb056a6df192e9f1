package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kdd-platform/kdd-gateway/internal/config"
	"github.com/kdd-platform/kdd-gateway/internal/session"
	"github.com/kdd-platform/kdd-gateway/pkg/logger"
	"github.com/kdd-platform/kdd-gateway/pkg/middleware"
)

// LoginRequest carries the credentials exchanged with the backend.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg      *config.Config
	sessions *session.Manager
}

func NewAuthHandler(cfg *config.Config, s *session.Manager) *AuthHandler {
	return &AuthHandler{cfg: cfg, sessions: s}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/logout", h.Logout)
	a.GET("/session", h.Session)
}

// sessionView is what the gateway exposes about a session; tokens stay
// server-side.
type sessionView struct {
	UserID             string `json:"userId"`
	Role               string `json:"role"`
	TenantType         string `json:"tenantType"`
	AccessTokenExpires int64  `json:"accessTokenExpires"`
}

func viewOf(s *session.Session) sessionView {
	return sessionView{
		UserID:             s.UserID,
		Role:               s.Role,
		TenantType:         s.TenantType,
		AccessTokenExpires: s.AccessTokenExpires,
	}
}

// dashboardRole picks the role used for post-login routing; sessions without
// an explicit role claim fall back to the tenant type.
func dashboardRole(s *session.Session) string {
	if s.Role != "" {
		return s.Role
	}
	return s.TenantType
}

// Login exchanges credentials with the backend and establishes the cookie
// session. The response carries the role dashboard the UI should navigate to.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		var ae *session.AuthError
		if errors.As(err, &ae) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": ae.Message})
			return
		}
		logger.Errorf("login failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "auth service unreachable"})
		return
	}

	h.setSessionCookies(c, s)
	c.JSON(http.StatusOK, gin.H{
		"redirect": middleware.DashboardPath(dashboardRole(s)),
		"session":  viewOf(s),
	})
}

// Logout clears the cookie session. The backend call inside the manager is
// best-effort; cookies are removed and the user lands on /login regardless.
func (h *AuthHandler) Logout(c *gin.Context) {
	if sid, err := c.Cookie(session.CookieNameFor(h.cfg.IsProduction())); err == nil && sid != "" {
		if err := h.sessions.Logout(c.Request.Context(), sid); err != nil {
			logger.Warnf("logout cleanup failed: %v", err)
		}
	}
	h.clearSessionCookies(c)
	c.Redirect(http.StatusFound, "/login")
}

// Session returns the current session view, or 401 when none exists.
func (h *AuthHandler) Session(c *gin.Context) {
	sid, err := c.Cookie(session.CookieNameFor(h.cfg.IsProduction()))
	if err != nil || sid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	s, err := h.sessions.Get(c.Request.Context(), sid)
	if err != nil || !s.Valid() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": viewOf(s)})
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, s *session.Session) {
	secure := h.cfg.Cookies.Secure
	domain := h.cfg.Cookies.Domain
	maxAge := int(h.cfg.Session.TTL.Seconds())
	c.SetCookie(session.CookieNameFor(h.cfg.IsProduction()), s.ID, maxAge, "/", domain, secure, true)
	// token cookies kept for browser-side API calls going through the proxy
	c.SetCookie(session.AccessTokenCookie, s.AccessToken, maxAge, "/", domain, secure, false)
	c.SetCookie(session.RefreshTokenCookie, s.RefreshToken, maxAge, "/", domain, secure, true)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	domain := h.cfg.Cookies.Domain
	secure := h.cfg.Cookies.Secure
	c.SetCookie(session.CookieNameFor(h.cfg.IsProduction()), "", -1, "/", domain, secure, true)
	c.SetCookie(session.AccessTokenCookie, "", -1, "/", domain, secure, false)
	c.SetCookie(session.RefreshTokenCookie, "", -1, "/", domain, secure, true)
}
