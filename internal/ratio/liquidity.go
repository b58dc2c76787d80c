package ratio

// Liquidity computes the five liquidity ratios.
func Liquidity(in Inputs) []Value {
	quickAssets := subOpt(in.CurrentAssets, in.Inventory)

	return []Value{
		div("current_ratio", in.CurrentAssets, in.CurrentLiabilities),
		div("quick_ratio", quickAssets, in.CurrentLiabilities),
		div("cash_ratio", in.Cash, in.CurrentLiabilities),
		div("operating_cash_flow_ratio", in.OperatingCashFlow, in.CurrentLiabilities),
		// (cash + receivables) / (opex / 365), kept as a single division so a
		// zero opex is flagged division_by_zero rather than missing data.
		scale(div("defensive_interval", addOpt(in.Cash, in.Receivables), in.OperatingExpenses), daysPerYear),
	}
}
