package ratio

// Valuation computes the five valuation ratios.
func Valuation(in Inputs) []Value {
	return []Value{
		div("price_to_earnings", in.MarketCap, in.NetIncome),
		div("ev_to_ebitda", in.EnterpriseValue, in.EBITDA),
		percent("dividend_yield", in.Dividends, in.MarketCap),
		div("price_to_book", in.MarketCap, in.TotalEquity),
		div("price_to_sales", in.MarketCap, in.Revenue),
	}
}
