// Package statement normalizes platform report documents into
// platform-neutral financial statements and keeps them deduplicated per
// connection and period.
package statement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mergerdesk.io/internal/finconn"
)

// Type names the statement kinds we ingest.
type Type string

const (
	TypeBalanceSheet Type = "balance_sheet"
	TypeProfitLoss   Type = "profit_loss"
	TypeCashFlow     Type = "cash_flow"
)

// ParseType normalizes a statement type tag.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeBalanceSheet:
		return TypeBalanceSheet, true
	case TypeProfitLoss:
		return TypeProfitLoss, true
	case TypeCashFlow:
		return TypeCashFlow, true
	}
	return "", false
}

// Quality describes how complete the normalized statement is.
type Quality string

const (
	// QualityOK means every expected figure was recognized.
	QualityOK Quality = "ok"
	// QualityPartial means the parser hit unrecognized fields and kept
	// what it could.
	QualityPartial Quality = "partial"
	// QualityReconciliationWarning means the balance sheet does not
	// balance within tolerance.
	QualityReconciliationWarning Quality = "reconciliation_warning"
)

// Statement is the platform-neutral figure set. Nil figures were absent
// from the source document; zero is a real zero.
type Statement struct {
	ID             string           `json:"id"`
	ConnectionID   string           `json:"connection_id"`
	DealID         string           `json:"deal_id"`
	OrganizationID string           `json:"organization_id"`
	Platform       finconn.Platform `json:"platform"`
	Type           Type             `json:"type"`
	PeriodEnd      time.Time        `json:"period_end"`
	Currency       string           `json:"currency,omitempty"`
	Quality        Quality          `json:"quality"`

	// Balance sheet figures.
	TotalAssets        *decimal.Decimal `json:"total_assets,omitempty"`
	CurrentAssets      *decimal.Decimal `json:"current_assets,omitempty"`
	Cash               *decimal.Decimal `json:"cash,omitempty"`
	Receivables        *decimal.Decimal `json:"receivables,omitempty"`
	Inventory          *decimal.Decimal `json:"inventory,omitempty"`
	TotalLiabilities   *decimal.Decimal `json:"total_liabilities,omitempty"`
	CurrentLiabilities *decimal.Decimal `json:"current_liabilities,omitempty"`
	Payables           *decimal.Decimal `json:"payables,omitempty"`
	TotalDebt          *decimal.Decimal `json:"total_debt,omitempty"`
	TotalEquity        *decimal.Decimal `json:"total_equity,omitempty"`

	// Profit and loss figures.
	Revenue                  *decimal.Decimal `json:"revenue,omitempty"`
	COGS                     *decimal.Decimal `json:"cogs,omitempty"`
	GrossProfit              *decimal.Decimal `json:"gross_profit,omitempty"`
	OperatingExpenses        *decimal.Decimal `json:"operating_expenses,omitempty"`
	OperatingIncome          *decimal.Decimal `json:"operating_income,omitempty"`
	DepreciationAmortization *decimal.Decimal `json:"depreciation_amortization,omitempty"`
	InterestExpense          *decimal.Decimal `json:"interest_expense,omitempty"`
	NetIncome                *decimal.Decimal `json:"net_income,omitempty"`
	EBITDA                   *decimal.Decimal `json:"ebitda,omitempty"`
	EBIT                     *decimal.Decimal `json:"ebit,omitempty"`

	// Cash flow figures.
	OperatingCashFlow *decimal.Decimal `json:"operating_cash_flow,omitempty"`
	CapEx             *decimal.Decimal `json:"capex,omitempty"`
	DividendsPaid     *decimal.Decimal `json:"dividends_paid,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists statements and their derived ratio sets. Upsert keys on
// (connection_id, type, period_end) so a re-pull updates in place;
// ReplaceRatios swaps a statement's whole ratio set atomically.
type Store interface {
	UpsertStatement(ctx context.Context, s Statement) (Statement, error)
	StatementByKey(ctx context.Context, connectionID string, typ Type, periodEnd time.Time) (Statement, error)
	StatementsByDeal(ctx context.Context, dealID string) ([]Statement, error)

	ReplaceRatios(ctx context.Context, statementID string, records []RatioRecord) error
	RatiosByStatement(ctx context.Context, statementID string) ([]RatioRecord, error)
}
