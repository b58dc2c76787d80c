package statement

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"mergerdesk.io/internal/apperr"
	"mergerdesk.io/internal/finconn"
)

// node is one row of a decoded report tree. Leaf rows carry an amount;
// section rows carry children and may carry a platform-reported subtotal.
type node struct {
	Label    string
	Amount   *decimal.Decimal
	Subtotal *decimal.Decimal
	Children []node
}

// parseAmount accepts the formats platforms actually emit: thousands
// separators, currency prefixes and accounting-style parentheses for
// negatives.
func parseAmount(raw string) (*decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimLeft(s, "$£€ ")
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, false
	}
	if negative {
		d = d.Neg()
	}
	return &d, true
}

func schemaErr(platform finconn.Platform, msg string) error {
	return apperr.Newf(apperr.KindSchemaDrift, "SCHEMA_UNEXPECTED", "%s report: %s", platform, msg)
}

// decodeReport turns a platform document into the neutral tree.
func decodeReport(platform finconn.Platform, raw []byte) ([]node, error) {
	switch platform {
	case finconn.PlatformXero:
		return decodeXero(platform, raw)
	case finconn.PlatformQuickBooks:
		return decodeQuickBooks(platform, raw)
	case finconn.PlatformNetSuite, finconn.PlatformSage:
		return decodeLabeledRows(platform, raw)
	default:
		return nil, schemaErr(platform, "no decoder for platform")
	}
}

// Xero wraps everything in Reports[0].Rows; sections are RowType "Section"
// with nested Rows, leaves are RowType "Row"/"SummaryRow" with Cells where
// cell 0 is the label and the last cell the amount.
type xeroDoc struct {
	Reports []struct {
		ReportTitles []string  `json:"ReportTitles"`
		Rows         []xeroRow `json:"Rows"`
	} `json:"Reports"`
}

type xeroRow struct {
	RowType string                   `json:"RowType"`
	Title   string                   `json:"Title"`
	Cells   []struct{ Value string } `json:"Cells"`
	Rows    []xeroRow                `json:"Rows"`
}

func decodeXero(platform finconn.Platform, raw []byte) ([]node, error) {
	var doc xeroDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schemaErr(platform, "document is not valid json")
	}
	if len(doc.Reports) == 0 {
		return nil, schemaErr(platform, "no Reports array")
	}
	return xeroNodes(doc.Reports[0].Rows), nil
}

func xeroNodes(rows []xeroRow) []node {
	var out []node
	for _, r := range rows {
		switch r.RowType {
		case "Section":
			n := node{Label: r.Title, Children: xeroNodes(r.Rows)}
			// Hoist a trailing summary row into the section subtotal.
			if len(n.Children) > 0 {
				last := n.Children[len(n.Children)-1]
				if strings.HasPrefix(strings.ToLower(last.Label), "total") && last.Amount != nil {
					n.Subtotal = last.Amount
				}
			}
			out = append(out, n)
		case "Row", "SummaryRow":
			if len(r.Cells) < 2 {
				continue
			}
			n := node{Label: r.Cells[0].Value}
			if amt, ok := parseAmount(r.Cells[len(r.Cells)-1].Value); ok {
				n.Amount = amt
			}
			out = append(out, n)
		}
	}
	return out
}

// QuickBooks nests rows under Rows.Row; groups carry Header/Summary ColData,
// leaves carry ColData directly.
type qbDoc struct {
	Rows qbRows `json:"Rows"`
}

type qbRows struct {
	Row []qbRow `json:"Row"`
}

type qbRow struct {
	Type    string     `json:"type"`
	Header  *qbColData `json:"Header"`
	Summary *qbColData `json:"Summary"`
	ColData []qbCol    `json:"ColData"`
	Rows    *qbRows    `json:"Rows"`
}

type qbColData struct {
	ColData []qbCol `json:"ColData"`
}

type qbCol struct {
	Value string `json:"value"`
}

func decodeQuickBooks(platform finconn.Platform, raw []byte) ([]node, error) {
	var doc qbDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schemaErr(platform, "document is not valid json")
	}
	if len(doc.Rows.Row) == 0 {
		return nil, schemaErr(platform, "no rows")
	}
	return qbNodes(doc.Rows.Row), nil
}

func qbNodes(rows []qbRow) []node {
	var out []node
	for _, r := range rows {
		if r.Header != nil || r.Rows != nil {
			n := node{}
			if r.Header != nil && len(r.Header.ColData) > 0 {
				n.Label = r.Header.ColData[0].Value
			}
			if r.Rows != nil {
				n.Children = qbNodes(r.Rows.Row)
			}
			if r.Summary != nil && len(r.Summary.ColData) >= 2 {
				if amt, ok := parseAmount(r.Summary.ColData[len(r.Summary.ColData)-1].Value); ok {
					n.Subtotal = amt
				}
			}
			out = append(out, n)
			continue
		}
		if len(r.ColData) >= 2 {
			n := node{Label: r.ColData[0].Value}
			if amt, ok := parseAmount(r.ColData[len(r.ColData)-1].Value); ok {
				n.Amount = amt
			}
			out = append(out, n)
		}
	}
	return out
}

// NetSuite and Sage report surfaces both reduce to labeled rows with
// optional nesting.
type labeledDoc struct {
	Report struct {
		Rows []labeledRow `json:"rows"`
	} `json:"report"`
}

type labeledRow struct {
	Label string       `json:"label"`
	Value *string      `json:"value"`
	Total *string      `json:"total"`
	Rows  []labeledRow `json:"rows"`
}

func decodeLabeledRows(platform finconn.Platform, raw []byte) ([]node, error) {
	var doc labeledDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schemaErr(platform, "document is not valid json")
	}
	if len(doc.Report.Rows) == 0 {
		return nil, schemaErr(platform, "no rows")
	}
	return labeledNodes(doc.Report.Rows), nil
}

func labeledNodes(rows []labeledRow) []node {
	var out []node
	for _, r := range rows {
		n := node{Label: r.Label, Children: labeledNodes(r.Rows)}
		if r.Value != nil {
			if amt, ok := parseAmount(*r.Value); ok {
				n.Amount = amt
			}
		}
		if r.Total != nil {
			if amt, ok := parseAmount(*r.Total); ok {
				n.Subtotal = amt
			}
		}
		out = append(out, n)
	}
	return out
}
