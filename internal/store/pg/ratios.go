package pg

import (
	"context"

	"github.com/shopspring/decimal"

	"mergerdesk.io/internal/statement"
)

// ReplaceRatios swaps a statement's whole ratio set inside one
// transaction so readers never observe a half-written catalog.
func (s *Store) ReplaceRatios(ctx context.Context, statementID string, records []statement.RatioRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from financial_ratios where statement_id = $1`, statementID); err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			insert into financial_ratios
				(id, statement_id, deal_id, period_label, name, value, quality, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, rec.ID, rec.StatementID, rec.DealID, rec.PeriodLabel, rec.Name,
			nullDecimal(rec.Value), string(rec.Quality), rec.CreatedAt); err != nil {
			return uniqueViolation(err, "RATIO_CONFLICT", "ratio already recorded for this statement")
		}
	}
	return tx.Commit()
}

func (s *Store) RatiosByStatement(ctx context.Context, statementID string) ([]statement.RatioRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, statement_id, deal_id, period_label, name, value, quality, created_at
		from financial_ratios
		where statement_id = $1
		order by name
	`, statementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []statement.RatioRecord
	for rows.Next() {
		var rec statement.RatioRecord
		var value decimal.NullDecimal
		if err := rows.Scan(&rec.ID, &rec.StatementID, &rec.DealID, &rec.PeriodLabel,
			&rec.Name, &value, &rec.Quality, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Value = decimalPtr(value)
		out = append(out, rec)
	}
	return out, rows.Err()
}
