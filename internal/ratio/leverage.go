package ratio

// Leverage computes the six leverage ratios.
func Leverage(in Inputs) []Value {
	return []Value{
		div("debt_to_equity", in.TotalLiabilities, in.TotalEquity),
		div("debt_to_assets", in.TotalLiabilities, in.TotalAssets),
		div("equity_multiplier", in.TotalAssets, in.TotalEquity),
		div("interest_coverage", in.EBIT, in.InterestExpense),
		div("debt_service_coverage", in.OperatingIncome, in.DebtService),
		div("financial_leverage", in.TotalDebt, in.EBITDA),
	}
}
