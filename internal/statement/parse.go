package statement

import (
	"strings"

	"github.com/shopspring/decimal"

	"mergerdesk.io/internal/finconn"
)

// defaultTolerance is the absolute imbalance a balance sheet may carry
// before it is flagged. Platforms round line items independently.
var defaultTolerance = decimal.NewFromFloat(0.05)

type parseResult struct {
	stmt     Statement
	warnings []string
}

func (r *parseResult) warn(msg string) {
	r.warnings = append(r.warnings, msg)
}

func labelHas(label string, terms ...string) bool {
	l := strings.ToLower(label)
	for _, t := range terms {
		if strings.Contains(l, t) {
			return true
		}
	}
	return false
}

func addTo(dst **decimal.Decimal, amt *decimal.Decimal) {
	if amt == nil {
		return
	}
	if *dst == nil {
		v := *amt
		*dst = &v
		return
	}
	v := (*dst).Add(*amt)
	*dst = &v
}

func setIfNil(dst **decimal.Decimal, amt *decimal.Decimal) {
	if *dst == nil && amt != nil {
		v := *amt
		*dst = &v
	}
}

// sumLeaves totals every leaf amount under a node, preferring the
// platform-reported subtotal when present.
func sumLeaves(n node) *decimal.Decimal {
	if n.Subtotal != nil {
		v := *n.Subtotal
		return &v
	}
	if n.Amount != nil && len(n.Children) == 0 {
		v := *n.Amount
		return &v
	}
	var total *decimal.Decimal
	for _, c := range n.Children {
		addTo(&total, sumLeaves(c))
	}
	return total
}

// parseBalanceSheet walks the tree summing sections into asset, liability
// and equity subtotals and picking out the named working-capital lines.
// An imbalance beyond tolerance records a warning, never a rejection.
func parseBalanceSheet(platform finconn.Platform, tree []node, tolerance decimal.Decimal) parseResult {
	res := parseResult{stmt: Statement{Type: TypeBalanceSheet, Quality: QualityOK}}
	s := &res.stmt

	var walk func(n node, section string)
	walk = func(n node, section string) {
		switch {
		case labelHas(n.Label, "asset"):
			section = "assets"
			if labelHas(n.Label, "current") && !labelHas(n.Label, "non-current", "noncurrent", "fixed") {
				setIfNil(&s.CurrentAssets, sumLeaves(n))
			}
		case labelHas(n.Label, "liabilit"):
			section = "liabilities"
			if labelHas(n.Label, "current") && !labelHas(n.Label, "non-current", "noncurrent", "long") {
				setIfNil(&s.CurrentLiabilities, sumLeaves(n))
			}
		case labelHas(n.Label, "equity"):
			section = "equity"
		}

		if len(n.Children) == 0 && n.Amount != nil {
			// Platform-reported totals override summation but must not
			// also be added as line items.
			if strings.HasPrefix(strings.ToLower(n.Label), "total") {
				switch {
				case labelHas(n.Label, "asset") && !labelHas(n.Label, "current", "fixed"):
					s.TotalAssets = nil
					addTo(&s.TotalAssets, n.Amount)
				case labelHas(n.Label, "liabilit") && !labelHas(n.Label, "current", "equity"):
					s.TotalLiabilities = nil
					addTo(&s.TotalLiabilities, n.Amount)
				case labelHas(n.Label, "equity") && !labelHas(n.Label, "liabilit"):
					s.TotalEquity = nil
					addTo(&s.TotalEquity, n.Amount)
				}
				return
			}
			switch section {
			case "assets":
				addTo(&s.TotalAssets, n.Amount)
				if labelHas(n.Label, "cash", "bank") {
					addTo(&s.Cash, n.Amount)
				}
				if labelHas(n.Label, "receivable", "debtor") {
					addTo(&s.Receivables, n.Amount)
				}
				if labelHas(n.Label, "inventor", "stock") {
					addTo(&s.Inventory, n.Amount)
				}
			case "liabilities":
				addTo(&s.TotalLiabilities, n.Amount)
				if labelHas(n.Label, "payable", "creditor") {
					addTo(&s.Payables, n.Amount)
				}
				if labelHas(n.Label, "loan", "debt", "borrowing", "note") {
					addTo(&s.TotalDebt, n.Amount)
				}
			case "equity":
				addTo(&s.TotalEquity, n.Amount)
			default:
				res.warn("unclassified line: " + n.Label)
			}
		}
		for _, c := range n.Children {
			walk(c, section)
		}
	}
	for _, n := range tree {
		walk(n, "")
	}

	if s.TotalAssets == nil || (s.TotalLiabilities == nil && s.TotalEquity == nil) {
		res.warn("missing major balance sheet section")
	}
	if len(res.warnings) > 0 {
		s.Quality = QualityPartial
	}

	if s.TotalAssets != nil && s.TotalLiabilities != nil && s.TotalEquity != nil {
		diff := s.TotalAssets.Sub(s.TotalLiabilities.Add(*s.TotalEquity)).Abs()
		if diff.GreaterThan(tolerance) {
			s.Quality = QualityReconciliationWarning
		}
	}
	return res
}

// parseProfitLoss extracts the income figures and derives the missing
// aggregates when the components are present.
func parseProfitLoss(platform finconn.Platform, tree []node) parseResult {
	res := parseResult{stmt: Statement{Type: TypeProfitLoss, Quality: QualityOK}}
	s := &res.stmt

	var walk func(n node, classified bool)
	walk = func(n node, classified bool) {
		total := sumLeaves(n)
		matched := true
		// Specific labels first: "interest expense" must not fall into the
		// generic expense bucket, "net income" not into revenue.
		switch {
		case labelHas(n.Label, "cost of sales", "cost of goods", "cogs", "direct cost"):
			setIfNil(&s.COGS, total)
		case labelHas(n.Label, "gross profit"):
			setIfNil(&s.GrossProfit, total)
		case labelHas(n.Label, "depreciation", "amortisation", "amortization"):
			addTo(&s.DepreciationAmortization, n.Amount)
		case labelHas(n.Label, "interest expense", "finance cost"):
			setIfNil(&s.InterestExpense, total)
		case labelHas(n.Label, "net profit", "net income", "profit for the"):
			setIfNil(&s.NetIncome, total)
		case labelHas(n.Label, "operating profit", "operating income"):
			setIfNil(&s.OperatingIncome, total)
		case labelHas(n.Label, "expense", "overheads"):
			setIfNil(&s.OperatingExpenses, total)
		case labelHas(n.Label, "revenue", "sales", "turnover", "income"):
			setIfNil(&s.Revenue, total)
		default:
			matched = false
			if !classified && len(n.Children) == 0 && n.Amount != nil {
				res.warn("unclassified line: " + n.Label)
			}
		}
		for _, c := range n.Children {
			walk(c, classified || matched)
		}
	}
	for _, n := range tree {
		walk(n, false)
	}

	if s.GrossProfit == nil && s.Revenue != nil && s.COGS != nil {
		v := s.Revenue.Sub(*s.COGS)
		s.GrossProfit = &v
	}
	if s.OperatingIncome == nil && s.GrossProfit != nil && s.OperatingExpenses != nil {
		v := s.GrossProfit.Sub(*s.OperatingExpenses)
		s.OperatingIncome = &v
	}
	setIfNil(&s.EBIT, s.OperatingIncome)
	// EBITDA only when depreciation is actually reported; no silent zero.
	if s.OperatingIncome != nil && s.DepreciationAmortization != nil {
		v := s.OperatingIncome.Add(*s.DepreciationAmortization)
		s.EBITDA = &v
	}

	if s.Revenue == nil || s.NetIncome == nil {
		res.warn("missing major profit and loss figure")
	}
	if len(res.warnings) > 0 {
		s.Quality = QualityPartial
	}
	return res
}

// parseCashFlow extracts the activity totals and the capex and dividend
// lines ratio computations consume.
func parseCashFlow(platform finconn.Platform, tree []node) parseResult {
	res := parseResult{stmt: Statement{Type: TypeCashFlow, Quality: QualityOK}}
	s := &res.stmt

	var walk func(n node, classified bool)
	walk = func(n node, classified bool) {
		matched := true
		switch {
		case labelHas(n.Label, "operating activities", "operations"):
			setIfNil(&s.OperatingCashFlow, sumLeaves(n))
		case labelHas(n.Label, "capital expenditure", "purchase of property", "purchases of property", "plant and equipment"):
			addTo(&s.CapEx, firstNonNil(n.Amount, n.Subtotal))
		case labelHas(n.Label, "dividend"):
			addTo(&s.DividendsPaid, firstNonNil(n.Amount, n.Subtotal))
		default:
			matched = false
			if !classified && len(n.Children) == 0 && n.Amount != nil {
				res.warn("unclassified line: " + n.Label)
			}
		}
		for _, c := range n.Children {
			walk(c, classified || matched)
		}
	}
	for _, n := range tree {
		walk(n, false)
	}

	if s.OperatingCashFlow == nil {
		res.warn("missing operating activities total")
	}
	if len(res.warnings) > 0 {
		s.Quality = QualityPartial
	}
	return res
}

func firstNonNil(vals ...*decimal.Decimal) *decimal.Decimal {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// Parse decodes a raw platform document and normalizes it into a
// Statement. The caller fills in the ownership fields.
func Parse(platform finconn.Platform, typ Type, raw []byte, tolerance decimal.Decimal) (Statement, []string, error) {
	tree, err := decodeReport(platform, raw)
	if err != nil {
		return Statement{}, nil, err
	}
	var res parseResult
	switch typ {
	case TypeBalanceSheet:
		res = parseBalanceSheet(platform, tree, tolerance)
	case TypeProfitLoss:
		res = parseProfitLoss(platform, tree)
	case TypeCashFlow:
		res = parseCashFlow(platform, tree)
	default:
		return Statement{}, nil, schemaErr(platform, "unknown statement type "+string(typ))
	}
	res.stmt.Platform = platform
	return res.stmt, res.warnings, nil
}
