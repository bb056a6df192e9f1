package session

import "time"

// Cookie names the session lifecycle relies on. Production deployments get
// the __Secure- prefix on the session cookie (HTTPS only).
const (
	CookieName         = "kdd.session-token"
	SecureCookieName   = "__Secure-kdd.session-token"
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieNameFor picks the session cookie name for the environment.
func CookieNameFor(production bool) string {
	if production {
		return SecureCookieName
	}
	return CookieName
}

// ErrRefreshAccessToken is the marker stored on a session whose refresh
// attempt was rejected. A session carrying it is invalid for new requests
// and forces a logout.
const ErrRefreshAccessToken = "RefreshAccessTokenError"

// Session is the authenticated user's credential + role + tenant state, held
// server-side and referenced by the session cookie.
type Session struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Role               string    `json:"role"`
	TenantType         string    `json:"tenantType"`
	AccessToken        string    `json:"accessToken"`
	RefreshToken       string    `json:"refreshToken"`
	AccessTokenExpires int64     `json:"accessTokenExpires"` // epoch milliseconds, exp claim * 1000
	Error              string    `json:"error,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	ExpiresAt          time.Time `json:"expiresAt"` // server-side record lifetime
}

// Valid reports whether the session can serve new requests.
func (s *Session) Valid() bool {
	return s != nil && s.Error == ""
}

// AccessExpired reports whether the access token's decoded expiry is at or
// past now.
func (s *Session) AccessExpired(now time.Time) bool {
	return s.AccessTokenExpires <= now.UnixMilli()
}
