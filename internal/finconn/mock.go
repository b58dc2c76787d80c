package finconn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mergerdesk.io/internal/apperr"
)

// MockDriver is the test driver. It mints deterministic tokens and serves
// canned report documents.
type MockDriver struct {
	mu sync.Mutex

	PlatformTag Platform
	TokenTTL    time.Duration

	// Reports maps report kind to the document FetchReport returns.
	Reports map[ReportKind][]byte

	// FailExchange/FailRefresh force the corresponding call to fail.
	FailExchange bool
	FailRefresh  bool
	// ExpireAccess makes FetchReport reject the current access token once.
	ExpireAccess bool

	exchanges int
	refreshes int
	revoked   []string
	current   string
}

// NewMockDriver builds a mock for the given platform.
func NewMockDriver(platform Platform) *MockDriver {
	return &MockDriver{
		PlatformTag: platform,
		TokenTTL:    time.Hour,
		Reports:     map[ReportKind][]byte{},
	}
}

func (m *MockDriver) Platform() Platform { return m.PlatformTag }

func (m *MockDriver) AuthorizeURL(state string) string {
	return fmt.Sprintf("https://auth.%s.example.com/authorize?state=%s", m.PlatformTag, state)
}

func (m *MockDriver) Exchange(_ context.Context, code string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailExchange {
		return Token{}, apperr.New(apperr.KindUnauthenticated, "OAUTH_GRANT_REJECTED", "mock grant rejected")
	}
	m.exchanges++
	m.current = fmt.Sprintf("access-%s-%d", code, m.exchanges)
	return Token{
		AccessToken:  m.current,
		RefreshToken: fmt.Sprintf("refresh-%s-%d", code, m.exchanges),
		ExpiresAt:    time.Now().UTC().Add(m.TokenTTL),
	}, nil
}

func (m *MockDriver) Refresh(_ context.Context, refreshToken string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRefresh {
		return Token{}, apperr.New(apperr.KindUnauthenticated, "OAUTH_GRANT_REJECTED", "mock refresh rejected")
	}
	m.refreshes++
	m.current = fmt.Sprintf("access-refreshed-%d", m.refreshes)
	return Token{
		AccessToken:  m.current,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().UTC().Add(m.TokenTTL),
	}, nil
}

func (m *MockDriver) Revoke(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked = append(m.revoked, t.RefreshToken)
	return nil
}

func (m *MockDriver) FetchReport(_ context.Context, accessToken string, kind ReportKind, _ time.Time) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExpireAccess {
		m.ExpireAccess = false
		return nil, apperr.New(apperr.KindUnauthenticated, "AUTH_EXPIRED", "mock access token expired")
	}
	if accessToken != m.current {
		return nil, apperr.New(apperr.KindUnauthenticated, "AUTH_EXPIRED", "mock access token stale")
	}
	doc, ok := m.Reports[kind]
	if !ok {
		return nil, apperr.Newf(apperr.KindUpstreamFailure, "MOCK_UNAVAILABLE", "no canned %s report", kind)
	}
	return doc, nil
}

// Refreshes reports how many refresh calls the driver served.
func (m *MockDriver) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

// Revoked reports the refresh tokens revoked so far.
func (m *MockDriver) Revoked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.revoked...)
}
