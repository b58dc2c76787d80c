package finconn

import (
	"context"
	"time"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/deal"
	"mergerdesk.io/internal/ids"
	"mergerdesk.io/internal/obs"
)

const (
	defaultStateTTL     = 10 * time.Minute
	defaultRefreshGrace = 5 * time.Minute
)

// Manager drives the connection lifecycle: OAuth initiation, callback
// redemption, token refresh and disconnection.
type Manager struct {
	store        Store
	drivers      Registry
	sealer       *Sealer
	stateTTL     time.Duration
	refreshGrace time.Duration
	now          func() time.Time
}

// ManagerOption configures Manager.
type ManagerOption func(*Manager)

// WithStateTTL overrides the state ticket lifetime.
func WithStateTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.stateTTL = d
		}
	}
}

// WithRefreshGrace overrides the expiry grace window.
func WithRefreshGrace(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.refreshGrace = d
		}
	}
}

// WithManagerClock overrides the time source (tests).
func WithManagerClock(fn func() time.Time) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager.
func NewManager(store Store, drivers Registry, sealer *Sealer, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:        store,
		drivers:      drivers,
		sealer:       sealer,
		stateTTL:     defaultStateTTL,
		refreshGrace: defaultRefreshGrace,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitiateOAuth creates an awaiting connection and a single-use state
// ticket, and returns the provider authorization URL. At most one active
// connection may exist per (deal, platform).
func (m *Manager) InitiateOAuth(ctx context.Context, user auth.User, d deal.Deal, platform Platform) (string, error) {
	driver, err := m.drivers.Driver(platform)
	if err != nil {
		return "", err
	}
	if _, err := m.store.ActiveConnection(ctx, d.ID, platform); err == nil {
		return "", apperr.Newf(apperr.KindConflict, "CONNECTION_EXISTS", "deal already has an active %s connection", platform)
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return "", err
	}

	now := m.now().UTC()
	conn, err := m.store.InsertConnection(ctx, Connection{
		ID:             ids.NewEntity(),
		DealID:         d.ID,
		OrganizationID: d.OrganizationID,
		Platform:       platform,
		Status:         StatusAwaitingCallback,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return "", err
	}

	state := ids.New()
	ticket := Ticket{
		State:          state,
		DealID:         d.ID,
		OrganizationID: d.OrganizationID,
		Platform:       platform,
		UserID:         user.ID,
		ConnectionID:   conn.ID,
		ExpiresAt:      now.Add(m.stateTTL),
		CreatedAt:      now,
	}
	if err := m.store.SaveTicket(ctx, ticket); err != nil {
		return "", err
	}
	return driver.AuthorizeURL(state), nil
}

// HandleCallback redeems the state ticket and exchanges the code for tokens.
// A duplicate callback for an already-redeemed state returns the connection
// again; a callback after ticket expiry fails.
func (m *Manager) HandleCallback(ctx context.Context, state, code string) (Connection, error) {
	ticket, err := m.store.TicketByState(ctx, state)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return Connection{}, apperr.New(apperr.KindBadInput, "OAUTH_STATE_INVALID", "unknown oauth state")
		}
		return Connection{}, err
	}
	if ticket.RedeemedAt != nil {
		return m.store.GetConnection(ctx, ticket.ConnectionID)
	}
	now := m.now().UTC()
	if now.After(ticket.ExpiresAt) {
		return Connection{}, apperr.New(apperr.KindBadInput, "OAUTH_STATE_EXPIRED", "oauth state expired")
	}

	driver, err := m.drivers.Driver(ticket.Platform)
	if err != nil {
		return Connection{}, err
	}

	conn, err := m.store.GetConnection(ctx, ticket.ConnectionID)
	if err != nil {
		return Connection{}, err
	}

	// The exchange may complete after client disconnect; tokens received
	// but not persisted are worse than a user-visible hiccup.
	exchCtx := context.WithoutCancel(ctx)
	token, err := driver.Exchange(exchCtx, code)
	if err != nil {
		conn.Status = StatusError
		conn.UpdatedAt = now
		if updErr := m.store.UpdateConnection(exchCtx, conn); updErr != nil {
			obs.LogError("mark connection error failed", updErr, map[string]any{"connection_id": conn.ID})
		}
		return Connection{}, err
	}

	if err := m.applyToken(&conn, token, now); err != nil {
		return Connection{}, err
	}
	conn.Status = StatusActive
	if err := m.store.UpdateConnection(exchCtx, conn); err != nil {
		return Connection{}, err
	}
	if err := m.store.RedeemTicket(exchCtx, state, conn.ID, now); err != nil {
		return Connection{}, err
	}
	return conn, nil
}

// Connection loads a connection by id.
func (m *Manager) Connection(ctx context.Context, connectionID string) (Connection, error) {
	return m.store.GetConnection(ctx, connectionID)
}

// Refresh exchanges the refresh token when the access token is inside the
// grace window. The row lock serializes refreshes per connection.
func (m *Manager) Refresh(ctx context.Context, connectionID string) (Connection, error) {
	return m.store.WithConnectionLock(ctx, connectionID, m.refreshLocked)
}

func (m *Manager) refreshLocked(ctx context.Context, c Connection) (Connection, error) {
	if c.Status != StatusActive && c.Status != StatusExpired {
		return c, apperr.Newf(apperr.KindBadInput, "CONNECTION_NOT_REFRESHABLE", "connection is %s", c.Status)
	}
	now := m.now().UTC()
	if c.TokenExpiresAt != nil && c.TokenExpiresAt.After(now.Add(m.refreshGrace)) {
		return c, nil // still fresh, another caller refreshed first
	}

	driver, err := m.drivers.Driver(c.Platform)
	if err != nil {
		return c, err
	}
	refreshToken, err := m.sealer.Open(c.SealedRefreshToken)
	if err != nil {
		return c, err
	}

	c.Status = StatusRefreshing
	token, err := driver.Refresh(context.WithoutCancel(ctx), refreshToken)
	if err != nil {
		obs.TokenRefreshesTotal.WithLabelValues(string(c.Platform), "failure").Inc()
		c.Status = StatusExpired
		c.UpdatedAt = now
		return c, nil
	}
	obs.TokenRefreshesTotal.WithLabelValues(string(c.Platform), "success").Inc()
	if err := m.applyToken(&c, token, now); err != nil {
		return c, err
	}
	c.Status = StatusActive
	return c, nil
}

// ForceRefresh refreshes regardless of the recorded expiry. Providers
// occasionally reject a token the clock still considers fresh.
func (m *Manager) ForceRefresh(ctx context.Context, connectionID string) (Connection, error) {
	return m.store.WithConnectionLock(ctx, connectionID, func(ctx context.Context, c Connection) (Connection, error) {
		c.TokenExpiresAt = nil
		return m.refreshLocked(ctx, c)
	})
}

// FreshToken returns the decrypted access token for an active connection,
// refreshing first when it is inside the grace window.
func (m *Manager) FreshToken(ctx context.Context, connectionID string) (Connection, Token, error) {
	conn, err := m.Refresh(ctx, connectionID)
	if err != nil {
		return Connection{}, Token{}, err
	}
	if conn.Status != StatusActive {
		return Connection{}, Token{}, apperr.Newf(apperr.KindBadInput, "CONNECTION_NOT_ACTIVE", "connection is %s", conn.Status)
	}
	token, err := m.openToken(conn)
	if err != nil {
		return Connection{}, Token{}, err
	}
	return conn, token, nil
}

// Disconnect revokes the grant and purges tokens. Terminal.
func (m *Manager) Disconnect(ctx context.Context, connectionID string) error {
	_, err := m.store.WithConnectionLock(ctx, connectionID, func(ctx context.Context, c Connection) (Connection, error) {
		if c.Status == StatusRevoked {
			return c, nil
		}
		if c.SealedRefreshToken != "" {
			if token, err := m.openToken(c); err == nil {
				if driver, derr := m.drivers.Driver(c.Platform); derr == nil {
					if rerr := driver.Revoke(context.WithoutCancel(ctx), token); rerr != nil {
						obs.LogError("token revoke failed", rerr, map[string]any{"connection_id": c.ID})
					}
				}
			}
		}
		now := m.now().UTC()
		c.Status = StatusRevoked
		c.SealedAccessToken = ""
		c.SealedRefreshToken = ""
		c.TokenExpiresAt = nil
		c.DeletedAt = &now
		c.UpdatedAt = now
		return c, nil
	})
	return err
}

// MarkSynced records the outcome of a statement pull.
func (m *Manager) MarkSynced(ctx context.Context, connectionID, outcome string) error {
	conn, err := m.store.GetConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	now := m.now().UTC()
	conn.LastSyncedAt = &now
	conn.LastSyncStatus = outcome
	conn.UpdatedAt = now
	return m.store.UpdateConnection(ctx, conn)
}

func (m *Manager) applyToken(c *Connection, token Token, now time.Time) error {
	sealedAccess, err := m.sealer.Seal(token.AccessToken)
	if err != nil {
		return err
	}
	sealedRefresh, err := m.sealer.Seal(token.RefreshToken)
	if err != nil {
		return err
	}
	expiry := token.ExpiresAt
	c.SealedAccessToken = sealedAccess
	c.SealedRefreshToken = sealedRefresh
	c.TokenExpiresAt = &expiry
	c.UpdatedAt = now
	return nil
}

func (m *Manager) openToken(c Connection) (Token, error) {
	access, err := m.sealer.Open(c.SealedAccessToken)
	if err != nil {
		return Token{}, err
	}
	refresh, err := m.sealer.Open(c.SealedRefreshToken)
	if err != nil {
		return Token{}, err
	}
	token := Token{AccessToken: access, RefreshToken: refresh}
	if c.TokenExpiresAt != nil {
		token.ExpiresAt = *c.TokenExpiresAt
	}
	return token, nil
}
