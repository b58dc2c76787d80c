package ratio

// CashFlow computes the eight cash-flow ratios. Free cash flow is an
// absolute figure rather than a quotient; it is null only when an input is.
func CashFlow(in Inputs) []Value {
	fcf := subOpt(in.OperatingCashFlow, in.CapEx)
	fcfValue := null("free_cash_flow", QualityInsufficientData)
	if fcf != nil {
		fcfValue = computed("free_cash_flow", *fcf)
	}

	return []Value{
		percent("operating_cash_flow_margin", in.OperatingCashFlow, in.Revenue),
		fcfValue,
		div("cash_flow_to_debt", in.OperatingCashFlow, in.TotalDebt),
		percent("cash_conversion_rate", in.OperatingCashFlow, in.NetIncome),
		percent("free_cash_flow_margin", fcf, in.Revenue),
		percent("free_cash_flow_yield", fcf, in.MarketCap),
		percent("capex_to_revenue", in.CapEx, in.Revenue),
		percent("capex_to_operating_cash_flow", in.CapEx, in.OperatingCashFlow),
	}
}
