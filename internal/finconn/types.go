// Package finconn manages OAuth connections between deals and external
// accounting platforms.
package finconn

import (
	"context"
	"strings"
	"time"
)

// Platform tags a supported accounting platform.
type Platform string

const (
	PlatformXero       Platform = "xero"
	PlatformQuickBooks Platform = "quickbooks"
	PlatformNetSuite   Platform = "netsuite"
	PlatformSage       Platform = "sage"
)

// ParsePlatform normalizes a platform tag.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(strings.TrimSpace(strings.ToLower(s))) {
	case PlatformXero:
		return PlatformXero, true
	case PlatformQuickBooks:
		return PlatformQuickBooks, true
	case PlatformNetSuite:
		return PlatformNetSuite, true
	case PlatformSage:
		return PlatformSage, true
	}
	return "", false
}

// Status is the connection lifecycle state.
type Status string

const (
	StatusAwaitingCallback Status = "awaiting_callback"
	StatusActive           Status = "active"
	StatusRefreshing       Status = "refreshing"
	StatusExpired          Status = "expired"
	StatusRevoked          Status = "revoked"
	StatusError            Status = "error"
)

// Token is a decrypted OAuth token pair. Tokens are opaque except for expiry
// and must never appear in logs or error messages.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Connection is a stored OAuth relationship between a deal and a platform.
// Access and refresh tokens are sealed at rest.
type Connection struct {
	ID                 string     `json:"id"`
	DealID             string     `json:"deal_id"`
	OrganizationID     string     `json:"organization_id"`
	Platform           Platform   `json:"platform"`
	ExternalOrgID      string     `json:"external_org_id,omitempty"`
	ExternalOrgName    string     `json:"external_org_name,omitempty"`
	SealedAccessToken  string     `json:"-"`
	SealedRefreshToken string     `json:"-"`
	TokenExpiresAt     *time.Time `json:"token_expires_at,omitempty"`
	Status             Status     `json:"status"`
	LastSyncedAt       *time.Time `json:"last_synced_at,omitempty"`
	LastSyncStatus     string     `json:"last_sync_status,omitempty"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Ticket is a single-use OAuth state bound to the initiating request.
type Ticket struct {
	State          string
	DealID         string
	OrganizationID string
	Platform       Platform
	UserID         string
	ExpiresAt      time.Time
	RedeemedAt     *time.Time
	ConnectionID   string
	CreatedAt      time.Time
}

// Store is the persistence surface for connections and state tickets.
type Store interface {
	SaveTicket(ctx context.Context, t Ticket) error
	// TicketByState returns the ticket regardless of redemption state.
	TicketByState(ctx context.Context, state string) (Ticket, error)
	// RedeemTicket marks the ticket redeemed and binds the connection id.
	RedeemTicket(ctx context.Context, state, connectionID string, at time.Time) error

	InsertConnection(ctx context.Context, c Connection) (Connection, error)
	GetConnection(ctx context.Context, id string) (Connection, error)
	ActiveConnection(ctx context.Context, dealID string, platform Platform) (Connection, error)
	UpdateConnection(ctx context.Context, c Connection) error
	// WithConnectionLock runs fn holding a row-level lock on the connection
	// and persists the returned record. At most one refresh per connection
	// can be in flight because of this lock.
	WithConnectionLock(ctx context.Context, id string, fn func(ctx context.Context, c Connection) (Connection, error)) (Connection, error)
}
