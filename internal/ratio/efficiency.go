package ratio

// Efficiency computes the seven efficiency ratios. The cash-conversion cycle
// is DSO + DIO - DPO and is null when any component is null.
func Efficiency(in Inputs) []Value {
	dso := scale(div("days_sales_outstanding", in.Receivables, in.Revenue), daysPerYear)
	dio := scale(div("days_inventory_outstanding", in.Inventory, in.COGS), daysPerYear)
	dpo := scale(div("days_payables_outstanding", in.Payables, in.COGS), daysPerYear)

	ccc := null("cash_conversion_cycle", QualityInsufficientData)
	if dso.Valid && dio.Valid && dpo.Valid {
		ccc = computed("cash_conversion_cycle", dso.Value.Add(dio.Value).Sub(dpo.Value))
	} else if dso.Quality == QualityDivisionByZero || dio.Quality == QualityDivisionByZero || dpo.Quality == QualityDivisionByZero {
		ccc = null("cash_conversion_cycle", QualityDivisionByZero)
	}

	return []Value{
		div("asset_turnover", in.Revenue, in.TotalAssets),
		div("inventory_turnover", in.COGS, in.Inventory),
		div("receivables_turnover", in.Revenue, in.Receivables),
		dso,
		dio,
		dpo,
		ccc,
	}
}
