package pg

import (
	"context"
	"database/sql"
	"errors"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/deal"
	"mergerdesk.io/internal/ids"
)

const dealColumns = `id, organization_id, name, status, created_at, updated_at`

func scanDeal(row *sql.Row) (deal.Deal, error) {
	var d deal.Deal
	err := row.Scan(&d.ID, &d.OrganizationID, &d.Name, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return deal.Deal{}, apperr.New(apperr.KindNotFound, "DEAL_NOT_FOUND", "deal not found")
	}
	if err != nil {
		return deal.Deal{}, err
	}
	return d, nil
}

func (s *Store) DealByID(ctx context.Context, id string) (deal.Deal, error) {
	return scanDeal(s.db.QueryRowContext(ctx, `
		select `+dealColumns+` from deals where id = $1
	`, id))
}

func (s *Store) CreateDeal(ctx context.Context, d deal.Deal) (deal.Deal, error) {
	if d.ID == "" {
		d.ID = ids.NewEntity()
	}
	if d.Status == "" {
		d.Status = "active"
	}
	row := s.db.QueryRowContext(ctx, `
		insert into deals (id, organization_id, name, status, created_at, updated_at)
		values ($1, $2, $3, $4, now(), now())
		returning `+dealColumns,
		d.ID, d.OrganizationID, d.Name, d.Status)
	saved, err := scanDeal(row)
	if err != nil {
		return deal.Deal{}, uniqueViolation(err, "DEAL_CONFLICT", "deal already exists")
	}
	return saved, nil
}

func (s *Store) DealsByOrganization(ctx context.Context, organizationID string) ([]deal.Deal, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+dealColumns+` from deals
		where organization_id = $1
		order by created_at desc
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []deal.Deal
	for rows.Next() {
		var d deal.Deal
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.Name, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
