package statement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/finconn"
	"mergerdesk.io/internal/ids"
	"mergerdesk.io/internal/obs"
)

var typeToReport = map[Type]finconn.ReportKind{
	TypeBalanceSheet: finconn.ReportBalanceSheet,
	TypeProfitLoss:   finconn.ReportProfitLoss,
	TypeCashFlow:     finconn.ReportCashFlow,
}

// Ingestor pulls platform reports through an active connection and
// persists the normalized statements.
type Ingestor struct {
	store     Store
	manager   *finconn.Manager
	drivers   finconn.Registry
	tolerance decimal.Decimal
	now       func() time.Time
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithTolerance overrides the balance sheet reconciliation tolerance.
func WithTolerance(t decimal.Decimal) IngestorOption {
	return func(i *Ingestor) { i.tolerance = t }
}

// WithIngestorClock overrides the time source (tests).
func WithIngestorClock(fn func() time.Time) IngestorOption {
	return func(i *Ingestor) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIngestor constructs an Ingestor.
func NewIngestor(store Store, manager *finconn.Manager, drivers finconn.Registry, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		store:     store,
		manager:   manager,
		drivers:   drivers,
		tolerance: defaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Pull fetches one statement for the period and upserts it. A provider
// auth rejection triggers exactly one forced refresh and retry. A document
// with unrecognized fields is persisted partially with the quality flag
// set; an undecodable document surfaces as schema drift. Every successful
// pull recomputes the statement's persisted ratio set.
func (i *Ingestor) Pull(ctx context.Context, connectionID string, typ Type, periodEnd time.Time) (Statement, error) {
	kind, ok := typeToReport[typ]
	if !ok {
		return Statement{}, apperr.Newf(apperr.KindBadInput, "STATEMENT_TYPE_UNKNOWN", "unknown statement type %q", typ)
	}

	conn, token, err := i.manager.FreshToken(ctx, connectionID)
	if err != nil {
		return Statement{}, err
	}
	driver, err := i.drivers.Driver(conn.Platform)
	if err != nil {
		return Statement{}, err
	}

	raw, err := driver.FetchReport(ctx, token.AccessToken, kind, periodEnd)
	if apperr.CodeOf(err) == "AUTH_EXPIRED" {
		// The provider disagrees with our recorded expiry. One retry.
		if _, rerr := i.manager.ForceRefresh(ctx, connectionID); rerr != nil {
			return Statement{}, rerr
		}
		conn, token, err = i.manager.FreshToken(ctx, connectionID)
		if err != nil {
			return Statement{}, err
		}
		raw, err = driver.FetchReport(ctx, token.AccessToken, kind, periodEnd)
	}
	if err != nil {
		i.finish(ctx, conn, "fetch_failed")
		return Statement{}, err
	}

	stmt, warnings, err := Parse(conn.Platform, typ, raw, i.tolerance)
	if err != nil {
		i.finish(ctx, conn, "schema_unexpected")
		return Statement{}, err
	}
	for _, w := range warnings {
		obs.Log("statement parse warning", map[string]any{
			"connection_id": conn.ID,
			"platform":      string(conn.Platform),
			"type":          string(typ),
			"warning":       w,
		})
	}

	now := i.now().UTC()
	stmt.ID = ids.NewEntity()
	stmt.ConnectionID = conn.ID
	stmt.DealID = conn.DealID
	stmt.OrganizationID = conn.OrganizationID
	stmt.PeriodEnd = periodEnd
	stmt.CreatedAt = now
	stmt.UpdatedAt = now

	saved, err := i.store.UpsertStatement(ctx, stmt)
	if err != nil {
		i.finish(ctx, conn, "persist_failed")
		return Statement{}, err
	}
	if err := i.recomputeRatios(ctx, saved); err != nil {
		i.finish(ctx, conn, "persist_failed")
		return Statement{}, err
	}
	i.finish(ctx, conn, "ok")
	return saved, nil
}

// Bundle is the statement set for one period.
type Bundle struct {
	BalanceSheet *Statement
	ProfitLoss   *Statement
	CashFlow     *Statement
}

// PullPeriod fetches balance sheet, profit and loss, and cash flow for a
// period. Cash flow is optional on some platforms; its absence does not
// fail the pull.
func (i *Ingestor) PullPeriod(ctx context.Context, connectionID string, periodEnd time.Time) (Bundle, error) {
	var b Bundle

	bs, err := i.Pull(ctx, connectionID, TypeBalanceSheet, periodEnd)
	if err != nil {
		return b, err
	}
	b.BalanceSheet = &bs

	pl, err := i.Pull(ctx, connectionID, TypeProfitLoss, periodEnd)
	if err != nil {
		return b, err
	}
	b.ProfitLoss = &pl

	cf, err := i.Pull(ctx, connectionID, TypeCashFlow, periodEnd)
	switch {
	case err == nil:
		b.CashFlow = &cf
	case apperr.IsKind(err, apperr.KindUpstreamFailure) && apperr.CodeOf(err) != "RATE_LIMITED":
		obs.Log("cash flow report unavailable", map[string]any{"connection_id": connectionID})
	default:
		return b, err
	}
	return b, nil
}

func (i *Ingestor) finish(ctx context.Context, conn finconn.Connection, outcome string) {
	obs.StatementPullsTotal.WithLabelValues(string(conn.Platform), outcome).Inc()
	if err := i.manager.MarkSynced(context.WithoutCancel(ctx), conn.ID, outcome); err != nil {
		obs.LogError("mark synced failed", err, map[string]any{"connection_id": conn.ID})
	}
}
