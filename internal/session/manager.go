package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kdd-platform/kdd-gateway/internal/backend"
	"github.com/kdd-platform/kdd-gateway/internal/tokens"
	"github.com/kdd-platform/kdd-gateway/pkg/logger"
	"github.com/kdd-platform/kdd-gateway/pkg/metrics"
)

var (
	// ErrNoSession means the session id is unknown or the record expired.
	ErrNoSession = errors.New("session not found")
	// ErrRefreshFailed means the backend rejected the refresh token. Fatal
	// for the session: no second attempt, the user must log in again.
	ErrRefreshFailed = errors.New("refresh token rejected")
)

// AuthError carries the backend's login-failure message for the UI.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Manager issues, refreshes, and invalidates sessions by exchanging
// credentials and tokens with the backend auth endpoints.
type Manager struct {
	api  *backend.Client // bare client, no token source: auth endpoints are anonymous
	repo Repository
	ttl  time.Duration

	// refreshGroup collapses concurrent refresh calls for the same session id
	// into a single backend request.
	refreshGroup singleflight.Group
	// loggedOut guards HandleSessionError so a session error fires logout
	// exactly once even when several requests observe it concurrently.
	loggedOut inFlightSet
}

func NewManager(api *backend.Client, repo Repository, ttl time.Duration) *Manager {
	return &Manager{api: api, repo: repo, ttl: ttl}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges credentials with the backend and persists a new session.
// A non-2xx from the backend surfaces as *AuthError with its message.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := m.api.Post(ctx, "/auth/login", loginRequest{Email: email, Password: password}, nil)
	if err != nil {
		if ae, ok := backend.AsAPIError(err); ok {
			msg := ae.Message
			if msg == "" {
				msg = "Login gagal"
			}
			return nil, &AuthError{Message: msg}
		}
		return nil, err
	}

	var pair tokenPair
	if err := resp.Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	claims, err := tokens.Parse(pair.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("backend issued unreadable access token: %w", err)
	}

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	s := &Session{
		ID:                 id,
		UserID:             claims.Subject,
		Role:               claims.Role,
		TenantType:         claims.TenantType,
		AccessToken:        pair.AccessToken,
		RefreshToken:       pair.RefreshToken,
		AccessTokenExpires: claims.ExpiresAt.Unix() * 1000,
		CreatedAt:          now,
		ExpiresAt:          now.Add(m.ttl),
	}
	if err := m.repo.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return s, nil
}

// Get loads a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	s, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

// refreshTimeout bounds one detached refresh flight.
const refreshTimeout = 30 * time.Second

// Refresh exchanges the stored refresh token for a new pair. Concurrent
// callers for the same session id share one in-flight backend call. On
// failure the session is persisted with the RefreshAccessTokenError marker
// and ErrRefreshFailed is returned; no retry is attempted.
func (m *Manager) Refresh(ctx context.Context, id string) (*Session, error) {
	v, err, _ := m.refreshGroup.Do(id, func() (interface{}, error) {
		// the flight is shared by every concurrent caller, so it must not die
		// with whichever request happened to start it
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refresh(fctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) refresh(ctx context.Context, id string) (*Session, error) {
	s, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}

	resp, err := m.api.Post(ctx, "/auth/refresh", map[string]string{"refresh_token": s.RefreshToken}, nil)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		logger.Warnf("token refresh rejected for session %s: %v", id, err)
		s.Error = ErrRefreshAccessToken
		if serr := m.repo.Save(ctx, s); serr != nil {
			logger.Errorf("failed to persist refresh error marker: %v", serr)
		}
		return nil, ErrRefreshFailed
	}

	// backend wraps the new pair in a data envelope
	var payload struct {
		Data tokenPair `json:"data"`
	}
	if err := resp.Decode(&payload); err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	claims, err := tokens.Parse(payload.Data.AccessToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("backend issued unreadable access token: %w", err)
	}

	s.AccessToken = payload.Data.AccessToken
	s.RefreshToken = payload.Data.RefreshToken
	s.AccessTokenExpires = claims.ExpiresAt.Unix() * 1000
	s.Error = ""
	if err := m.repo.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("store refreshed session: %w", err)
	}
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	return s, nil
}

// Logout invalidates the refresh token at the backend (best-effort: a
// failure there never blocks clearing local state) and deletes the session.
func (m *Manager) Logout(ctx context.Context, id string) error {
	s, err := m.repo.Get(ctx, id)
	if err == nil && s != nil {
		if _, err := m.api.Post(ctx, "/auth/logout", map[string]string{"refresh_token": s.RefreshToken}, nil); err != nil {
			logger.Warnf("backend logout failed (continuing): %v", err)
		}
	}
	return m.repo.Delete(ctx, id)
}

// HandleSessionError fires the logout flow for an errored session exactly
// once. Returns true for the caller that performed the logout.
func (m *Manager) HandleSessionError(ctx context.Context, id string) bool {
	if !m.loggedOut.add(id) {
		return false
	}
	if err := m.Logout(ctx, id); err != nil {
		logger.Warnf("logout after session error failed: %v", err)
	}
	return true
}

// TokenSource returns a backend.TokenSource bound to the given session id, so
// request-scoped clients pick up refreshed tokens transparently.
func (m *Manager) TokenSource(id string) backend.TokenSource {
	return &managerTokenSource{m: m, id: id}
}

type managerTokenSource struct {
	m  *Manager
	id string
}

func (ts *managerTokenSource) AccessToken(ctx context.Context) (string, error) {
	s, err := ts.m.Get(ctx, ts.id)
	if err != nil {
		return "", err
	}
	if !s.Valid() {
		return "", ErrRefreshFailed
	}
	return s.AccessToken, nil
}

func (ts *managerTokenSource) Refresh(ctx context.Context) (string, error) {
	s, err := ts.m.Refresh(ctx, ts.id)
	if err != nil {
		if errors.Is(err, ErrRefreshFailed) {
			ts.m.HandleSessionError(ctx, ts.id)
		}
		return "", err
	}
	return s.AccessToken, nil
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
