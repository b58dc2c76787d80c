package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/auth"
	"mergerdesk.io/internal/ids"
)

const userColumns = `id, external_subject, email, first_name, last_name, image_url,
	role, active, coalesce(organization_id, ''), last_login_at, created_at, updated_at`

func scanUser(row *sql.Row) (auth.User, error) {
	var u auth.User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.ExternalSubject, &u.Email, &u.FirstName, &u.LastName,
		&u.ImageURL, &u.Role, &u.Active, &u.OrganizationID, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "user not found")
	}
	if err != nil {
		return auth.User{}, err
	}
	u.LastLoginAt = timePtr(lastLogin)
	return u, nil
}

func (s *Store) UserByExternalSubject(ctx context.Context, subject string) (auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users
		where external_subject = $1 and deleted_at is null
	`, subject))
}

// UpsertUser inserts or updates by external subject. The internal id is
// assigned on first insert and never changes.
func (s *Store) UpsertUser(ctx context.Context, u auth.User) (auth.User, error) {
	if u.ID == "" {
		u.ID = ids.NewEntity()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, external_subject, email, first_name, last_name, image_url,
			role, active, organization_id, last_login_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		on conflict (external_subject) do update set
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			image_url = excluded.image_url,
			role = excluded.role,
			active = excluded.active,
			organization_id = excluded.organization_id,
			last_login_at = coalesce(excluded.last_login_at, users.last_login_at),
			deleted_at = null,
			updated_at = now()
		returning `+userColumns,
		u.ID, u.ExternalSubject, u.Email, u.FirstName, u.LastName, u.ImageURL,
		string(u.Role), u.Active, nullString(u.OrganizationID), nullTime(u.LastLoginAt))
	saved, err := scanUser(row)
	if err != nil {
		return auth.User{}, uniqueViolation(err, "USER_CONFLICT", "user conflicts with an existing row")
	}
	return saved, nil
}

// SoftDeleteUser tombstones the user; the row survives for audit joins.
func (s *Store) SoftDeleteUser(ctx context.Context, subject string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set active = false, deleted_at = now(), updated_at = now()
		where external_subject = $1 and deleted_at is null
	`, subject)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "user not found")
	}
	return nil
}

func (s *Store) TouchLastLogin(ctx context.Context, subject string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set last_login_at = $2, updated_at = now()
		where external_subject = $1 and deleted_at is null
	`, subject, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "user not found")
	}
	return nil
}

const orgColumns = `id, name, slug, subscription_tier, active, created_at, updated_at`

func scanOrganization(row *sql.Row) (auth.Organization, error) {
	var o auth.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.SubscriptionTier, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Organization{}, apperr.New(apperr.KindNotFound, "ORGANIZATION_NOT_FOUND", "organization not found")
	}
	if err != nil {
		return auth.Organization{}, err
	}
	return o, nil
}

func (s *Store) OrganizationByID(ctx context.Context, id string) (auth.Organization, error) {
	return scanOrganization(s.db.QueryRowContext(ctx, `
		select `+orgColumns+` from organizations where id = $1 and deleted_at is null
	`, id))
}

// UpsertOrganization inserts or updates by identifier. Natural fields
// follow the upsert; the identifier is the stable key.
func (s *Store) UpsertOrganization(ctx context.Context, o auth.Organization) (auth.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into organizations (id, name, slug, subscription_tier, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, now(), now())
		on conflict (id) do update set
			name = excluded.name,
			slug = excluded.slug,
			subscription_tier = excluded.subscription_tier,
			active = excluded.active,
			updated_at = now()
		returning `+orgColumns,
		o.ID, o.Name, o.Slug, o.SubscriptionTier, o.Active)
	saved, err := scanOrganization(row)
	if err != nil {
		return auth.Organization{}, uniqueViolation(err, "ORGANIZATION_SLUG_TAKEN", "organization slug already in use")
	}
	return saved, nil
}
