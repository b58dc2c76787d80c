// Package ratio computes the financial ratio catalog as pure functions.
//
// No I/O, no shared state. Every ratio follows the same null-propagation
// policy: any missing input yields a null value flagged insufficient_data, a
// zero denominator yields a null value flagged division_by_zero, and negative
// inputs pass through untouched. Percentage ratios are scaled by 100.
package ratio

import (
	"math"

	"github.com/shopspring/decimal"
)

// Quality explains why a value is (or is not) present.
type Quality string

const (
	QualityComputed         Quality = "computed"
	QualityInsufficientData Quality = "insufficient_data"
	QualityDivisionByZero   Quality = "division_by_zero"
)

// Value is one named ratio. Value is meaningful only when Valid is true.
type Value struct {
	Name    string          `json:"name"`
	Value   decimal.Decimal `json:"value"`
	Valid   bool            `json:"valid"`
	Quality Quality         `json:"quality"`
}

// Inputs carries the statement figures a computation may consume. Nil means
// the figure was absent from the source statement; zero is a real zero.
type Inputs struct {
	// Balance sheet.
	TotalAssets        *decimal.Decimal
	TotalLiabilities   *decimal.Decimal
	TotalEquity        *decimal.Decimal
	CurrentAssets      *decimal.Decimal
	CurrentLiabilities *decimal.Decimal
	Inventory          *decimal.Decimal
	Cash               *decimal.Decimal
	Receivables        *decimal.Decimal
	Payables           *decimal.Decimal
	TotalDebt          *decimal.Decimal

	// Profit and loss.
	Revenue           *decimal.Decimal
	COGS              *decimal.Decimal
	GrossProfit       *decimal.Decimal
	OperatingIncome   *decimal.Decimal
	OperatingExpenses *decimal.Decimal
	NetIncome         *decimal.Decimal
	EBITDA            *decimal.Decimal
	EBIT              *decimal.Decimal
	InterestExpense   *decimal.Decimal
	DebtService       *decimal.Decimal

	// Cash flow.
	OperatingCashFlow *decimal.Decimal
	CapEx             *decimal.Decimal

	// Market.
	MarketCap       *decimal.Decimal
	EnterpriseValue *decimal.Decimal
	Dividends       *decimal.Decimal

	// Prior period (year-over-year ratios).
	PriorRevenue         *decimal.Decimal
	PriorEBITDA          *decimal.Decimal
	PriorNetIncome       *decimal.Decimal
	PriorGrossProfit     *decimal.Decimal
	PriorOperatingIncome *decimal.Decimal
	PriorTotalAssets     *decimal.Decimal
	PriorTotalEquity     *decimal.Decimal

	// CAGR window.
	CAGRStart *decimal.Decimal
	CAGREnd   *decimal.Decimal
	CAGRYears int
}

var hundred = decimal.NewFromInt(100)
var daysPerYear = decimal.NewFromInt(365)

func null(name string, q Quality) Value {
	return Value{Name: name, Quality: q}
}

func computed(name string, v decimal.Decimal) Value {
	return Value{Name: name, Value: v, Valid: true, Quality: QualityComputed}
}

// div is the core primitive: num/den with the uniform policy.
func div(name string, num, den *decimal.Decimal) Value {
	if num == nil || den == nil {
		return null(name, QualityInsufficientData)
	}
	if den.IsZero() {
		return null(name, QualityDivisionByZero)
	}
	return computed(name, num.Div(*den))
}

// percent is div scaled by 100.
func percent(name string, num, den *decimal.Decimal) Value {
	v := div(name, num, den)
	if v.Valid {
		v.Value = v.Value.Mul(hundred)
	}
	return v
}

// scale multiplies a valid value, propagating nulls.
func scale(v Value, by decimal.Decimal) Value {
	if v.Valid {
		v.Value = v.Value.Mul(by)
	}
	return v
}

// addOpt returns a+b or nil when either side is absent.
func addOpt(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil {
		return nil
	}
	sum := a.Add(*b)
	return &sum
}

// subOpt returns a-b or nil when either side is absent.
func subOpt(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil {
		return nil
	}
	diff := a.Sub(*b)
	return &diff
}

// divOpt returns a/b or nil when either side is absent or b is zero. Used to
// build compound denominators; quality refinement happens in div.
func divOpt(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil || b.IsZero() {
		return nil
	}
	q := a.Div(*b)
	return &q
}

// yoy is (current-prior)/prior scaled to percent.
func yoy(name string, current, prior *decimal.Decimal) Value {
	return percent(name, subOpt(current, prior), prior)
}

// CAGR returns ((end/start)^(1/years) - 1) x 100, null when start <= 0 or
// years <= 0. The fractional exponent forces a float round trip; statement
// magnitudes are far inside float64 precision.
func CAGR(end, start *decimal.Decimal, years int) Value {
	const name = "cagr"
	if end == nil || start == nil {
		return null(name, QualityInsufficientData)
	}
	if years <= 0 || start.Sign() <= 0 {
		return null(name, QualityInsufficientData)
	}
	ratio, _ := end.Div(*start).Float64()
	if ratio < 0 {
		return null(name, QualityInsufficientData)
	}
	growth := math.Pow(ratio, 1/float64(years)) - 1
	return computed(name, decimal.NewFromFloat(growth).Mul(hundred))
}
