package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/kdd-platform/kdd-gateway/internal/backend"
	"github.com/kdd-platform/kdd-gateway/pkg/logger"
	"github.com/kdd-platform/kdd-gateway/pkg/metrics"
)

// ErrTenantNotFound means the backend has no tenant registered for the
// request's host. The middleware turns this into the /tenant-not-found
// redirect.
var ErrTenantNotFound = errors.New("no tenant registered for domain")

// Resolver answers "which tenant does this host belong to" using the backend
// by-domain endpoint, with a cache in front of it.
type Resolver struct {
	api   *backend.Client
	cache Cache
}

func NewResolver(api *backend.Client, cache Cache) *Resolver {
	return &Resolver{api: api, cache: cache}
}

// Resolve maps a request Host to a tenant id. Lookup failures (non-2xx or
// transport errors) surface as ErrTenantNotFound; they are not retried.
func (r *Resolver) Resolve(ctx context.Context, host string) (string, error) {
	domain := NormalizeHost(host)
	if domain == "" {
		return "", ErrTenantNotFound
	}

	if r.cache != nil {
		if id, err := r.cache.Get(ctx, domain); err != nil {
			logger.Warnf("tenant cache read failed for %s: %v", domain, err)
		} else if id != "" {
			metrics.TenantLookups.WithLabelValues("cache").Inc()
			return id, nil
		}
	}

	resp, err := r.api.Get(ctx, "/tenant/by-domain?domain="+url.QueryEscape(domain), nil)
	if err != nil {
		metrics.TenantLookups.WithLabelValues("error").Inc()
		logger.Warnf("tenant lookup for %s failed: %v", domain, err)
		return "", fmt.Errorf("%w: %s", ErrTenantNotFound, domain)
	}

	id, err := decodeTenantID(resp.Body)
	if err != nil || id == "" {
		metrics.TenantLookups.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %s", ErrTenantNotFound, domain)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, domain, id); err != nil {
			logger.Warnf("tenant cache write failed for %s: %v", domain, err)
		}
	}
	metrics.TenantLookups.WithLabelValues("lookup").Inc()
	return id, nil
}

// decodeTenantID handles both string and numeric tenant ids in the backend's
// {data:{tenant_id}} payload.
func decodeTenantID(body []byte) (string, error) {
	var payload struct {
		Data struct {
			TenantID json.RawMessage `json:"tenant_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(payload.Data.TenantID, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(payload.Data.TenantID, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("unrecognized tenant_id payload")
}

// NormalizeHost lowercases the host and strips any port.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
