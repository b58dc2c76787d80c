package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/statement"
)

// The three aggregate totals live in numeric(20,3) columns; everything
// else travels as one jsonb document since platforms report different
// subsets.
func marshalFigures(s statement.Statement) ([]byte, error) {
	// Strip the relational columns before encoding; they live beside the
	// document.
	s.ID, s.ConnectionID, s.DealID, s.OrganizationID = "", "", "", ""
	s.Platform, s.Type, s.Currency, s.Quality = "", "", "", ""
	s.PeriodEnd, s.CreatedAt, s.UpdatedAt = time.Time{}, time.Time{}, time.Time{}
	s.TotalAssets, s.TotalLiabilities, s.TotalEquity = nil, nil, nil
	return json.Marshal(s)
}

func unmarshalFigures(doc []byte, into *statement.Statement) error {
	var figures statement.Statement
	if err := json.Unmarshal(doc, &figures); err != nil {
		return err
	}
	id, connID, dealID, orgID := into.ID, into.ConnectionID, into.DealID, into.OrganizationID
	platform, typ, currency, quality := into.Platform, into.Type, into.Currency, into.Quality
	periodEnd, created, updated := into.PeriodEnd, into.CreatedAt, into.UpdatedAt
	assets, liabilities, equity := into.TotalAssets, into.TotalLiabilities, into.TotalEquity
	*into = figures
	into.ID, into.ConnectionID, into.DealID, into.OrganizationID = id, connID, dealID, orgID
	into.Platform, into.Type, into.Currency, into.Quality = platform, typ, currency, quality
	into.PeriodEnd, into.CreatedAt, into.UpdatedAt = periodEnd, created, updated
	into.TotalAssets, into.TotalLiabilities, into.TotalEquity = assets, liabilities, equity
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

const stmtColumns = `id, connection_id, deal_id, organization_id, platform,
	statement_type, period_end, currency, quality,
	total_assets, total_liabilities, total_equity, figures, created_at, updated_at`

type stmtRow interface {
	Scan(dest ...any) error
}

func scanStatement(row stmtRow) (statement.Statement, error) {
	var st statement.Statement
	var assets, liabilities, equity decimal.NullDecimal
	var figures []byte
	err := row.Scan(&st.ID, &st.ConnectionID, &st.DealID, &st.OrganizationID, &st.Platform,
		&st.Type, &st.PeriodEnd, &st.Currency, &st.Quality,
		&assets, &liabilities, &equity, &figures, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return statement.Statement{}, apperr.New(apperr.KindNotFound, "STATEMENT_NOT_FOUND", "statement not found")
	}
	if err != nil {
		return statement.Statement{}, err
	}
	st.TotalAssets = decimalPtr(assets)
	st.TotalLiabilities = decimalPtr(liabilities)
	st.TotalEquity = decimalPtr(equity)
	if err := unmarshalFigures(figures, &st); err != nil {
		return statement.Statement{}, err
	}
	return st, nil
}

// UpsertStatement keys on (connection_id, statement_type, period_end); a
// re-pull replaces the figures and keeps the row identity.
func (s *Store) UpsertStatement(ctx context.Context, st statement.Statement) (statement.Statement, error) {
	figures, err := marshalFigures(st)
	if err != nil {
		return statement.Statement{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into financial_statements
			(id, connection_id, deal_id, organization_id, platform,
			 statement_type, period_end, currency, quality,
			 total_assets, total_liabilities, total_equity, figures, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		on conflict (connection_id, statement_type, period_end) do update set
			currency = excluded.currency,
			quality = excluded.quality,
			total_assets = excluded.total_assets,
			total_liabilities = excluded.total_liabilities,
			total_equity = excluded.total_equity,
			figures = excluded.figures,
			updated_at = now()
		returning `+stmtColumns,
		st.ID, st.ConnectionID, st.DealID, st.OrganizationID, string(st.Platform),
		string(st.Type), st.PeriodEnd, st.Currency, string(st.Quality),
		nullDecimal(st.TotalAssets), nullDecimal(st.TotalLiabilities), nullDecimal(st.TotalEquity), figures)
	saved, err := scanStatement(row)
	if err != nil {
		return statement.Statement{}, uniqueViolation(err, "STATEMENT_CONFLICT", "statement conflicts with an existing row")
	}
	return saved, nil
}

func (s *Store) StatementByKey(ctx context.Context, connectionID string, typ statement.Type, periodEnd time.Time) (statement.Statement, error) {
	return scanStatement(s.db.QueryRowContext(ctx, `
		select `+stmtColumns+` from financial_statements
		where connection_id = $1 and statement_type = $2 and period_end = $3
	`, connectionID, string(typ), periodEnd))
}

func (s *Store) StatementsByDeal(ctx context.Context, dealID string) ([]statement.Statement, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+stmtColumns+` from financial_statements
		where deal_id = $1
		order by period_end desc, statement_type
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []statement.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
