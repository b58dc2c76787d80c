package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/finconn"
)

func (s *Store) SaveTicket(ctx context.Context, t finconn.Ticket) error {
	_, err := s.db.ExecContext(ctx, `
		insert into oauth_state_tickets
			(state, deal_id, organization_id, platform, user_id, connection_id, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.State, t.DealID, t.OrganizationID, string(t.Platform), t.UserID, t.ConnectionID, t.ExpiresAt, t.CreatedAt)
	return uniqueViolation(err, "OAUTH_STATE_CONFLICT", "oauth state already issued")
}

func (s *Store) TicketByState(ctx context.Context, state string) (finconn.Ticket, error) {
	var t finconn.Ticket
	var redeemed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select state, deal_id, organization_id, platform, user_id, connection_id,
			expires_at, redeemed_at, created_at
		from oauth_state_tickets where state = $1
	`, state).Scan(&t.State, &t.DealID, &t.OrganizationID, &t.Platform, &t.UserID,
		&t.ConnectionID, &t.ExpiresAt, &redeemed, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return finconn.Ticket{}, apperr.New(apperr.KindNotFound, "OAUTH_STATE_INVALID", "oauth state not found")
	}
	if err != nil {
		return finconn.Ticket{}, err
	}
	t.RedeemedAt = timePtr(redeemed)
	return t, nil
}

func (s *Store) RedeemTicket(ctx context.Context, state, connectionID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update oauth_state_tickets
		set redeemed_at = $2, connection_id = $3
		where state = $1 and redeemed_at is null
	`, state, at, connectionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindConflict, "OAUTH_STATE_REDEEMED", "oauth state already redeemed")
	}
	return nil
}

const connColumns = `id, deal_id, organization_id, platform, status,
	external_org_id, external_org_name, sealed_access_token, sealed_refresh_token,
	token_expires_at, last_synced_at, last_sync_status, deleted_at, created_at, updated_at`

type connRow interface {
	Scan(dest ...any) error
}

func scanConnection(row connRow) (finconn.Connection, error) {
	var c finconn.Connection
	var tokenExp, synced, deleted sql.NullTime
	err := row.Scan(&c.ID, &c.DealID, &c.OrganizationID, &c.Platform, &c.Status,
		&c.ExternalOrgID, &c.ExternalOrgName, &c.SealedAccessToken, &c.SealedRefreshToken,
		&tokenExp, &synced, &c.LastSyncStatus, &deleted, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return finconn.Connection{}, apperr.New(apperr.KindNotFound, "CONNECTION_NOT_FOUND", "connection not found")
	}
	if err != nil {
		return finconn.Connection{}, err
	}
	c.TokenExpiresAt = timePtr(tokenExp)
	c.LastSyncedAt = timePtr(synced)
	c.DeletedAt = timePtr(deleted)
	return c, nil
}

func (s *Store) InsertConnection(ctx context.Context, c finconn.Connection) (finconn.Connection, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into financial_connections
			(id, deal_id, organization_id, platform, status,
			 external_org_id, external_org_name, sealed_access_token, sealed_refresh_token,
			 token_expires_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		returning `+connColumns,
		c.ID, c.DealID, c.OrganizationID, string(c.Platform), string(c.Status),
		c.ExternalOrgID, c.ExternalOrgName, c.SealedAccessToken, c.SealedRefreshToken,
		nullTime(c.TokenExpiresAt))
	saved, err := scanConnection(row)
	if err != nil {
		return finconn.Connection{}, uniqueViolation(err, "CONNECTION_EXISTS", "deal already has an active connection for this platform")
	}
	return saved, nil
}

func (s *Store) GetConnection(ctx context.Context, id string) (finconn.Connection, error) {
	return scanConnection(s.db.QueryRowContext(ctx, `
		select `+connColumns+` from financial_connections where id = $1
	`, id))
}

func (s *Store) ActiveConnection(ctx context.Context, dealID string, platform finconn.Platform) (finconn.Connection, error) {
	return scanConnection(s.db.QueryRowContext(ctx, `
		select `+connColumns+` from financial_connections
		where deal_id = $1 and platform = $2 and status = 'active' and deleted_at is null
	`, dealID, string(platform)))
}

func (s *Store) UpdateConnection(ctx context.Context, c finconn.Connection) error {
	res, err := s.db.ExecContext(ctx, `
		update financial_connections set
			status = $2,
			external_org_id = $3,
			external_org_name = $4,
			sealed_access_token = $5,
			sealed_refresh_token = $6,
			token_expires_at = $7,
			last_synced_at = $8,
			last_sync_status = $9,
			deleted_at = $10,
			updated_at = now()
		where id = $1
	`, c.ID, string(c.Status), c.ExternalOrgID, c.ExternalOrgName,
		c.SealedAccessToken, c.SealedRefreshToken, nullTime(c.TokenExpiresAt),
		nullTime(c.LastSyncedAt), c.LastSyncStatus, nullTime(c.DeletedAt))
	if err != nil {
		return uniqueViolation(err, "CONNECTION_EXISTS", "deal already has an active connection for this platform")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "CONNECTION_NOT_FOUND", "connection not found")
	}
	return nil
}

// WithConnectionLock serializes token refresh per connection with a
// select for update inside one transaction.
func (s *Store) WithConnectionLock(ctx context.Context, id string, fn func(ctx context.Context, c finconn.Connection) (finconn.Connection, error)) (finconn.Connection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return finconn.Connection{}, err
	}
	defer func() { _ = tx.Rollback() }()

	locked, err := scanConnection(tx.QueryRowContext(ctx, `
		select `+connColumns+` from financial_connections where id = $1 for update
	`, id))
	if err != nil {
		return finconn.Connection{}, err
	}

	updated, err := fn(ctx, locked)
	if err != nil {
		return finconn.Connection{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		update financial_connections set
			status = $2,
			external_org_id = $3,
			external_org_name = $4,
			sealed_access_token = $5,
			sealed_refresh_token = $6,
			token_expires_at = $7,
			last_synced_at = $8,
			last_sync_status = $9,
			deleted_at = $10,
			updated_at = now()
		where id = $1
	`, updated.ID, string(updated.Status), updated.ExternalOrgID, updated.ExternalOrgName,
		updated.SealedAccessToken, updated.SealedRefreshToken, nullTime(updated.TokenExpiresAt),
		nullTime(updated.LastSyncedAt), updated.LastSyncStatus, nullTime(updated.DeletedAt)); err != nil {
		return finconn.Connection{}, err
	}
	if err := tx.Commit(); err != nil {
		return finconn.Connection{}, err
	}
	return updated, nil
}
