package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the token payload fields the gateway cares about. The backend
// issues the tokens; the gateway only reads them.
type Claims struct {
	Subject    string
	Role       string
	TenantType string
	ExpiresAt  time.Time
}

// Parse decodes the payload of a JWT-shaped token without verifying its
// signature. This is a best-effort read used for expiry hints and role
// routing; any trust decision is re-checked against the backend (or the OIDC
// verifier when configured), never against these claims alone.
func Parse(token string) (*Claims, error) {
	var mc jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &mc); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("token has no exp claim")
	}
	c := &Claims{ExpiresAt: exp.Time}
	if sub, err := mc.GetSubject(); err == nil {
		c.Subject = sub
	}
	if v, ok := mc["role"].(string); ok {
		c.Role = v
	}
	if v, ok := mc["jenis_tenant"].(string); ok {
		c.TenantType = v
	}
	return c, nil
}

// ExpiryMillis returns the exp claim as epoch milliseconds (exp * 1000).
func ExpiryMillis(token string) (int64, error) {
	c, err := Parse(token)
	if err != nil {
		return 0, err
	}
	return c.ExpiresAt.Unix() * 1000, nil
}

// Expired reports whether the token's exp claim is at or past now.
func Expired(token string, now time.Time) bool {
	c, err := Parse(token)
	if err != nil {
		// unreadable tokens are treated as expired so the refresh path runs
		return true
	}
	return !c.ExpiresAt.After(now)
}
