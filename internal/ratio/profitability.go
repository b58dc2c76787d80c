package ratio

// Profitability computes the eight profitability ratios.
func Profitability(in Inputs) []Value {
	// Invested capital approximated as debt plus equity.
	investedCapital := addOpt(in.TotalDebt, in.TotalEquity)

	return []Value{
		percent("gross_margin", in.GrossProfit, in.Revenue),
		percent("operating_margin", in.OperatingIncome, in.Revenue),
		percent("net_margin", in.NetIncome, in.Revenue),
		percent("return_on_assets", in.NetIncome, in.TotalAssets),
		percent("return_on_equity", in.NetIncome, in.TotalEquity),
		percent("return_on_invested_capital", in.NetIncome, investedCapital),
		percent("ebitda_margin", in.EBITDA, in.Revenue),
		percent("ebit_margin", in.EBIT, in.Revenue),
	}
}
