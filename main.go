package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kdd-platform/kdd-gateway/handlers"
	"github.com/kdd-platform/kdd-gateway/internal/backend"
	"github.com/kdd-platform/kdd-gateway/internal/config"
	"github.com/kdd-platform/kdd-gateway/internal/oidc"
	"github.com/kdd-platform/kdd-gateway/internal/session"
	"github.com/kdd-platform/kdd-gateway/internal/tenant"
	"github.com/kdd-platform/kdd-gateway/pkg/logger"
	"github.com/kdd-platform/kdd-gateway/pkg/metrics"
	"github.com/kdd-platform/kdd-gateway/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging level controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: api=%s redis=%v oidc=%v", cfg.API.BaseURL, cfg.Redis.Host != "", cfg.OIDC.Issuer != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Tenant-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Tenant-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Global middlewares: logging + recovery
	r.Use(gin.Logger(), gin.Recovery())

	// Connect to Redis early so the rate limiter, session store and tenant
	// cache can use it when configured. Everything degrades to in-memory
	// fallbacks when Redis is absent.
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			rdb = nil
		} else {
			logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Backend API client: anonymous here; request-scoped token sources are
	// attached where a session is in hand.
	api := backend.NewClient(cfg.API.BaseURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}))

	// Session store: Redis when available, in-memory otherwise (dev only —
	// memory sessions do not survive restarts).
	var sessionRepo session.Repository
	if rdb != nil {
		sessionRepo = session.NewRedisRepository(rdb, "session:")
		logger.Infof("Using Redis for session storage")
	} else {
		sessionRepo = session.NewMemoryRepository()
		logger.Warnf("Using in-memory session storage; sessions are lost on restart")
	}
	sessions := session.NewManager(api, sessionRepo, cfg.Session.TTL)

	// Tenant domain lookups, cached
	var tenantCache tenant.Cache
	if rdb != nil {
		tenantCache = tenant.NewRedisCache(rdb, cfg.Tenant.CacheTTL)
	} else {
		tenantCache = tenant.NewMemoryCache(cfg.Tenant.CacheTTL)
	}
	resolver := tenant.NewResolver(api, tenantCache)

	// OIDC verifier when the backend publishes discovery; nil means the
	// middleware trusts the decoded expiry only and lets the backend enforce
	// signatures.
	var verifier middleware.Verifier
	if cfg.OIDC.Issuer != "" && cfg.OIDC.ClientID != "" {
		ver, err := oidc.NewVerifier(context.Background(), cfg.OIDC.Issuer, cfg.OIDC.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifier = ver
		}
	}
	// Optional insecure verifier for integration tests: parse token claims
	// without signature verification
	if verifier == nil && strings.EqualFold(os.Getenv("ALLOW_INSECURE_TOKEN"), "true") {
		logger.Warn("enabling insecure token verifier (integration mode)")
		verifier = oidc.NewInsecureVerifier()
	}

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint — 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["sessions"] = sessionRepo != nil

		if cfg.Redis.Host != "" {
			deps["redis"] = rdb != nil
			if rdb == nil {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		if cfg.OIDC.Issuer != "" {
			deps["oidc"] = verifier != nil
			if verifier == nil {
				ready = false
			}
		} else {
			deps["oidc"] = true
		}

		status := http.StatusOK
		label := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			label = "not_ready"
		}
		c.JSON(status, gin.H{"status": label, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	// Tenant resolution MUST run before auth: a request on an unresolvable
	// domain lands on /tenant-not-found, never on /login.
	r.Use(middleware.TenantMiddleware(resolver, cfg.Cookies.Domain, cfg.Cookies.Secure))
	r.Use(middleware.AuthMiddleware(sessions, verifier, cfg.IsProduction()))

	// Optional global rate limiter: registered after auth so authenticated
	// traffic is keyed per user; anonymous traffic (login attempts, lookup
	// misses) falls back to the client IP.
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	handlers.NewAuthHandler(cfg, sessions).Register(r.Group("/"))
	handlers.NewProxyHandler(cfg.API.BaseURL, sessions, cfg.IsProduction()).Register(r)
	handlers.NewPageHandler(api, sessions).Register(r)
	handlers.RegisterSwagger(r)

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Starting kdd-gateway on %s (env=%s)", addr, cfg.Server.Environment)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
