package ratio

// Growth computes the eight growth ratios. Year-over-year values need the
// prior period's figure; CAGR needs an explicit window.
func Growth(in Inputs) []Value {
	return []Value{
		yoy("revenue_yoy", in.Revenue, in.PriorRevenue),
		yoy("ebitda_yoy", in.EBITDA, in.PriorEBITDA),
		yoy("net_income_yoy", in.NetIncome, in.PriorNetIncome),
		CAGR(in.CAGREnd, in.CAGRStart, in.CAGRYears),
		yoy("gross_profit_yoy", in.GrossProfit, in.PriorGrossProfit),
		yoy("operating_income_yoy", in.OperatingIncome, in.PriorOperatingIncome),
		yoy("total_assets_yoy", in.TotalAssets, in.PriorTotalAssets),
		yoy("equity_yoy", in.TotalEquity, in.PriorTotalEquity),
	}
}
