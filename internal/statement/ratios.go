package statement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/ids"
	"mergerdesk.io/internal/obs"
	"mergerdesk.io/internal/ratio"
)

// RatioRecord is one persisted ratio value derived from a statement.
// Value is nil unless the quality flag is computed.
type RatioRecord struct {
	ID          string           `json:"id"`
	StatementID string           `json:"statement_id"`
	DealID      string           `json:"deal_id"`
	PeriodLabel string           `json:"period_label"`
	Name        string           `json:"name"`
	Value       *decimal.Decimal `json:"value,omitempty"`
	Quality     ratio.Quality    `json:"quality"`
	CreatedAt   time.Time        `json:"created_at"`
}

// recomputeRatios runs the full catalog over the period's stored bundle
// and replaces the statement's ratio set. Runs once per pull, after the
// statement is persisted.
func (i *Ingestor) recomputeRatios(ctx context.Context, saved Statement) error {
	var bundle Bundle
	attach := func(s Statement) {
		switch s.Type {
		case TypeBalanceSheet:
			bundle.BalanceSheet = &s
		case TypeProfitLoss:
			bundle.ProfitLoss = &s
		case TypeCashFlow:
			bundle.CashFlow = &s
		}
	}
	attach(saved)
	for _, typ := range []Type{TypeBalanceSheet, TypeProfitLoss, TypeCashFlow} {
		if typ == saved.Type {
			continue
		}
		sibling, err := i.store.StatementByKey(ctx, saved.ConnectionID, typ, saved.PeriodEnd)
		switch {
		case err == nil:
			attach(sibling)
		case apperr.IsKind(err, apperr.KindNotFound):
			// Not pulled yet; the missing figures flag as insufficient_data.
		default:
			return err
		}
	}

	values := ratio.ComputeAll(BuildInputs(bundle, nil))
	now := i.now().UTC()
	records := make([]RatioRecord, 0, len(values))
	for _, v := range values {
		rec := RatioRecord{
			ID:          ids.New(),
			StatementID: saved.ID,
			DealID:      saved.DealID,
			PeriodLabel: saved.PeriodEnd.Format("2006-01-02"),
			Name:        v.Name,
			Quality:     v.Quality,
			CreatedAt:   now,
		}
		if v.Valid {
			val := v.Value
			rec.Value = &val
		}
		records = append(records, rec)
	}
	if err := i.store.ReplaceRatios(ctx, saved.ID, records); err != nil {
		return err
	}
	obs.Log("ratios recomputed", map[string]any{
		"statement_id": saved.ID,
		"deal_id":      saved.DealID,
		"period":       records[0].PeriodLabel,
		"count":        len(records),
	})
	return nil
}
