package statement

import "mergerdesk.io/internal/ratio"

// BuildInputs maps a period's statements onto the ratio input set. The
// prior bundle feeds the year-over-year ratios; market figures and the
// CAGR window come from elsewhere and stay nil here.
func BuildInputs(curr Bundle, prior *Bundle) ratio.Inputs {
	var in ratio.Inputs
	if bs := curr.BalanceSheet; bs != nil {
		in.TotalAssets = bs.TotalAssets
		in.TotalLiabilities = bs.TotalLiabilities
		in.TotalEquity = bs.TotalEquity
		in.CurrentAssets = bs.CurrentAssets
		in.CurrentLiabilities = bs.CurrentLiabilities
		in.Inventory = bs.Inventory
		in.Cash = bs.Cash
		in.Receivables = bs.Receivables
		in.Payables = bs.Payables
		in.TotalDebt = bs.TotalDebt
	}
	if pl := curr.ProfitLoss; pl != nil {
		in.Revenue = pl.Revenue
		in.COGS = pl.COGS
		in.GrossProfit = pl.GrossProfit
		in.OperatingIncome = pl.OperatingIncome
		in.OperatingExpenses = pl.OperatingExpenses
		in.NetIncome = pl.NetIncome
		in.EBITDA = pl.EBITDA
		in.EBIT = pl.EBIT
		in.InterestExpense = pl.InterestExpense
	}
	if cf := curr.CashFlow; cf != nil {
		in.OperatingCashFlow = cf.OperatingCashFlow
		in.CapEx = cf.CapEx
		in.Dividends = cf.DividendsPaid
	}
	if prior != nil {
		if pl := prior.ProfitLoss; pl != nil {
			in.PriorRevenue = pl.Revenue
			in.PriorEBITDA = pl.EBITDA
			in.PriorNetIncome = pl.NetIncome
			in.PriorGrossProfit = pl.GrossProfit
			in.PriorOperatingIncome = pl.OperatingIncome
		}
		if bs := prior.BalanceSheet; bs != nil {
			in.PriorTotalAssets = bs.TotalAssets
			in.PriorTotalEquity = bs.TotalEquity
		}
	}
	return in
}
