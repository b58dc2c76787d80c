package statement

import (
	"testing"

	"github.com/shopspring/decimal"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/finconn"
)

const xeroBalanceSheet = `{"Reports":[{"Rows":[
  {"RowType":"Section","Title":"Assets","Rows":[
    {"RowType":"Row","Cells":[{"Value":"Business Bank Account"},{"Value":"400.00"}]},
    {"RowType":"Row","Cells":[{"Value":"Accounts Receivable"},{"Value":"1,400.00"}]},
    {"RowType":"Row","Cells":[{"Value":"Inventory"},{"Value":"200.00"}]},
    {"RowType":"SummaryRow","Cells":[{"Value":"Total Assets"},{"Value":"2,000.00"}]}]},
  {"RowType":"Section","Title":"Liabilities","Rows":[
    {"RowType":"Row","Cells":[{"Value":"Accounts Payable"},{"Value":"600.00"}]},
    {"RowType":"SummaryRow","Cells":[{"Value":"Total Liabilities"},{"Value":"600.00"}]}]},
  {"RowType":"Section","Title":"Equity","Rows":[
    {"RowType":"Row","Cells":[{"Value":"Retained Earnings"},{"Value":"1,400.00"}]},
    {"RowType":"SummaryRow","Cells":[{"Value":"Total Equity"},{"Value":"1,400.00"}]}]}
]}]}`

func requireFigure(t *testing.T, got *decimal.Decimal, want string, name string) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s: figure missing", name)
	}
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: got %s, want %s", name, got, want)
	}
}

func TestParseXeroBalanceSheet(t *testing.T) {
	stmt, warnings, err := Parse(finconn.PlatformXero, TypeBalanceSheet, []byte(xeroBalanceSheet), defaultTolerance)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if stmt.Quality != QualityOK {
		t.Fatalf("expected ok quality, got %s", stmt.Quality)
	}
	requireFigure(t, stmt.TotalAssets, "2000", "total_assets")
	requireFigure(t, stmt.Cash, "400", "cash")
	requireFigure(t, stmt.Receivables, "1400", "receivables")
	requireFigure(t, stmt.Inventory, "200", "inventory")
	requireFigure(t, stmt.TotalLiabilities, "600", "total_liabilities")
	requireFigure(t, stmt.Payables, "600", "payables")
	requireFigure(t, stmt.TotalEquity, "1400", "total_equity")
}

func TestBalanceSheetReconciliationWarning(t *testing.T) {
	doc := `{"Reports":[{"Rows":[
	  {"RowType":"Section","Title":"Assets","Rows":[
	    {"RowType":"Row","Cells":[{"Value":"Business Bank Account"},{"Value":"2000.00"}]}]},
	  {"RowType":"Section","Title":"Liabilities","Rows":[
	    {"RowType":"Row","Cells":[{"Value":"Accounts Payable"},{"Value":"600.00"}]}]},
	  {"RowType":"Section","Title":"Equity","Rows":[
	    {"RowType":"Row","Cells":[{"Value":"Retained Earnings"},{"Value":"1300.00"}]}]}
	]}]}`
	stmt, _, err := Parse(finconn.PlatformXero, TypeBalanceSheet, []byte(doc), defaultTolerance)
	if err != nil {
		t.Fatalf("imbalance must not reject: %v", err)
	}
	if stmt.Quality != QualityReconciliationWarning {
		t.Fatalf("expected reconciliation_warning, got %s", stmt.Quality)
	}
	requireFigure(t, stmt.TotalAssets, "2000", "total_assets")
}

func TestBalanceSheetWithinTolerance(t *testing.T) {
	doc := `{"Reports":[{"Rows":[
	  {"RowType":"Section","Title":"Assets","Rows":[
	    {"RowType":"Row","Cells":[{"Value":"Business Bank Account"},{"Value":"2000.04"}]}]},
	  {"RowType":"Section","Title":"Liabilities","Rows":[
	    {"RowType":"Row","Cells":[{"Value":"Accounts Payable"},{"Value":"600.00"}]}]},
	  {"RowType":"Section","Title":"Equity","Rows":[
	    {"RowType":"Row","Cells":[{"Value":"Retained Earnings"},{"Value":"1400.00"}]}]}
	]}]}`
	stmt, _, err := Parse(finconn.PlatformXero, TypeBalanceSheet, []byte(doc), defaultTolerance)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if stmt.Quality == QualityReconciliationWarning {
		t.Fatalf("rounding inside tolerance must not be flagged")
	}
}

const qbProfitLoss = `{"Rows":{"Row":[
  {"Header":{"ColData":[{"value":"Income"}]},
   "Rows":{"Row":[{"ColData":[{"value":"Sales"},{"value":"1000.00"}]}]},
   "Summary":{"ColData":[{"value":"Total Income"},{"value":"1000.00"}]}},
  {"Header":{"ColData":[{"value":"Cost of Goods Sold"}]},
   "Rows":{"Row":[{"ColData":[{"value":"Materials"},{"value":"400.00"}]}]},
   "Summary":{"ColData":[{"value":"Total COGS"},{"value":"400.00"}]}},
  {"Header":{"ColData":[{"value":"Expenses"}]},
   "Rows":{"Row":[
     {"ColData":[{"value":"Rent"},{"value":"150.00"}]},
     {"ColData":[{"value":"Depreciation"},{"value":"50.00"}]}]},
   "Summary":{"ColData":[{"value":"Total Expenses"},{"value":"200.00"}]}},
  {"ColData":[{"value":"Net Income"},{"value":"400.00"}]}
]}}`

func TestParseQuickBooksProfitLossDerivesAggregates(t *testing.T) {
	stmt, warnings, err := Parse(finconn.PlatformQuickBooks, TypeProfitLoss, []byte(qbProfitLoss), defaultTolerance)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	requireFigure(t, stmt.Revenue, "1000", "revenue")
	requireFigure(t, stmt.COGS, "400", "cogs")
	requireFigure(t, stmt.GrossProfit, "600", "gross_profit")
	requireFigure(t, stmt.OperatingExpenses, "200", "operating_expenses")
	requireFigure(t, stmt.OperatingIncome, "400", "operating_income")
	requireFigure(t, stmt.EBIT, "400", "ebit")
	requireFigure(t, stmt.EBITDA, "450", "ebitda")
	requireFigure(t, stmt.NetIncome, "400", "net_income")
}

func TestProfitLossEBITDANotDerivableWithoutDepreciation(t *testing.T) {
	doc := `{"Rows":{"Row":[
	  {"Header":{"ColData":[{"value":"Income"}]},
	   "Summary":{"ColData":[{"value":"Total Income"},{"value":"1000.00"}]}},
	  {"ColData":[{"value":"Net Income"},{"value":"400.00"}]}
	]}}`
	stmt, _, err := Parse(finconn.PlatformQuickBooks, TypeProfitLoss, []byte(doc), defaultTolerance)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if stmt.EBITDA != nil {
		t.Fatalf("ebitda must stay null without reported depreciation")
	}
}

func TestParseSageCashFlow(t *testing.T) {
	doc := `{"report":{"rows":[
	  {"label":"Net cash from operating activities","total":"300.00"},
	  {"label":"Purchase of property, plant and equipment","value":"(120.00)"},
	  {"label":"Dividends paid","value":"(30.00)"}
	]}}`
	stmt, warnings, err := Parse(finconn.PlatformSage, TypeCashFlow, []byte(doc), defaultTolerance)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	requireFigure(t, stmt.OperatingCashFlow, "300", "operating_cash_flow")
	requireFigure(t, stmt.CapEx, "-120", "capex")
	requireFigure(t, stmt.DividendsPaid, "-30", "dividends_paid")
}

func TestUnrecognizedLinesFlagPartial(t *testing.T) {
	doc := `{"report":{"rows":[
	  {"label":"Net cash from operating activities","total":"300.00"},
	  {"label":"Quantum adjustments","value":"55.00"}
	]}}`
	stmt, warnings, err := Parse(finconn.PlatformNetSuite, TypeCashFlow, []byte(doc), defaultTolerance)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if stmt.Quality != QualityPartial {
		t.Fatalf("expected partial quality, got %s", stmt.Quality)
	}
	if len(warnings) == 0 {
		t.Fatalf("expected an unclassified-line warning")
	}
	requireFigure(t, stmt.OperatingCashFlow, "300", "operating_cash_flow")
}

func TestUndecodableDocumentIsSchemaDrift(t *testing.T) {
	_, _, err := Parse(finconn.PlatformXero, TypeBalanceSheet, []byte("<html>maintenance</html>"), defaultTolerance)
	if !apperr.IsKind(err, apperr.KindSchemaDrift) {
		t.Fatalf("expected schema drift, got %v", err)
	}
	if apperr.CodeOf(err) != "SCHEMA_UNEXPECTED" {
		t.Fatalf("expected SCHEMA_UNEXPECTED, got %s", apperr.CodeOf(err))
	}
}

func TestParseAmountFormats(t *testing.T) {
	cases := map[string]string{
		"1,234.56": "1234.56",
		"(500.00)": "-500",
		"$2,000":   "2000",
		"0":        "0",
		"-12.5":    "-12.5",
	}
	for raw, want := range cases {
		got, ok := parseAmount(raw)
		if !ok {
			t.Fatalf("parseAmount(%q) failed", raw)
		}
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("parseAmount(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, ok := parseAmount(""); ok {
		t.Fatalf("empty amount must not parse")
	}
	if _, ok := parseAmount("n/a"); ok {
		t.Fatalf("non-numeric amount must not parse")
	}
}
