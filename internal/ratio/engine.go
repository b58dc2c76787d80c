package ratio

// CatalogSize is the number of named ratios ComputeAll produces.
const CatalogSize = 47

// ComputeAll evaluates the full catalog: 5 liquidity, 8 profitability,
// 6 leverage, 7 efficiency, 5 valuation, 8 growth and 8 cash-flow ratios.
func ComputeAll(in Inputs) []Value {
	out := make([]Value, 0, CatalogSize)
	out = append(out, Liquidity(in)...)
	out = append(out, Profitability(in)...)
	out = append(out, Leverage(in)...)
	out = append(out, Efficiency(in)...)
	out = append(out, Valuation(in)...)
	out = append(out, Growth(in)...)
	out = append(out, CashFlow(in)...)
	return out
}
