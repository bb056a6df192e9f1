package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kdd-platform/kdd-gateway/internal/session"
)

func TestRateLimitMiddleware_BlocksAfterBurst(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(0.0001, 2)) // effectively no refill during the test
	r.GET("/r", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	send := func() int {
		req := httptest.NewRequest("GET", "/r", nil)
		req.RemoteAddr = "10.1.2.3:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusTooManyRequests, send())
}

func TestRateLimitMiddleware_KeysPerClient(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(0.0001, 1))
	r.GET("/r", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(addr string) int {
		req := httptest.NewRequest("GET", "/r", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, send("10.0.0.1:1"))
	require.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1"))
	// a different client has its own bucket
	require.Equal(t, http.StatusOK, send("10.0.0.2:1"))
}

// The limiter must see the session set by the auth middleware, so two
// authenticated users behind one NAT address get separate buckets.
func TestRateLimitMiddleware_KeysByUserWhenAuthenticated(t *testing.T) {
	alice := liveSession("umkm")
	alice.ID, alice.UserID = "sid-alice", "user-alice"
	bob := liveSession("umkm")
	bob.ID, bob.UserID = "sid-bob", "user-bob"
	f := &fakeSessions{store: map[string]*session.Session{
		"sid-alice": alice,
		"sid-bob":   bob,
	}}

	r := gin.New()
	r.Use(AuthMiddleware(f, nil, false))
	r.Use(RateLimitMiddleware(0.0001, 1))
	r.GET("/umkm/dashboard", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(sid string) int {
		req := httptest.NewRequest("GET", "/umkm/dashboard", nil)
		req.RemoteAddr = "10.0.0.9:1"
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sid})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, send("sid-alice"))
	require.Equal(t, http.StatusOK, send("sid-bob"))
	// the same user's second request exhausts their own bucket
	require.Equal(t, http.StatusTooManyRequests, send("sid-alice"))
}
