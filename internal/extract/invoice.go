package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zombor/cuisine-ocr/internal/catalog"
)

// InvoiceLine is one purchased product line of an invoice or price list
type InvoiceLine struct {
	Line       int                `json:"line"`
	RawLine    string             `json:"raw_line"`
	Name       string             `json:"name"`
	Quantity   decimal.Decimal    `json:"quantity"`
	Unit       string             `json:"unit,omitempty"`
	UnitPrice  *decimal.Decimal   `json:"unit_price,omitempty"`
	TotalPrice *decimal.Decimal   `json:"total_price,omitempty"`
	Match      catalog.Resolution `json:"match"`
}

// ParsedInvoiceData is the structured content of a supplier invoice or
// mercuriale
type ParsedInvoiceData struct {
	SupplierName            string           `json:"supplier_name,omitempty"`
	SupplierID              string           `json:"supplier_id,omitempty"`
	SupplierMatchConfidence float64          `json:"supplier_match_confidence"`
	InvoiceNumber           string           `json:"invoice_number,omitempty"`
	InvoiceDate             string           `json:"invoice_date,omitempty"`
	Products                []InvoiceLine    `json:"products"`
	TotalHT                 *decimal.Decimal `json:"total_ht,omitempty"`
	TotalTTC                *decimal.Decimal `json:"total_ttc,omitempty"`
	Skipped                 []SkippedLine    `json:"skipped,omitempty"`
	Warnings                []Warning        `json:"warnings,omitempty"`
}

const unitExpr = `(?i:kg|g|l|cl|ml|pcs?|pi[eè]ces?|u|unit[eé]s?|bo[iî]tes?|bte|btl|bouteilles?|colis|lots?|sacs?|cartons?)`

var (
	// Beurre doux 5kg x 8,50€ = 42,50€
	reInvoiceLine = regexp.MustCompile(`^(?P<name>.*?\pL.*?)\s+(?P<qty>\d+(?:[.,]\d+)?)\s*(?P<unit>` + unitExpr + `)?\.?\s*[xX×*]\s*€?\s*(?P<unit_price>\d+(?:[.,]\d{1,3})?)\s*€?(?:\s*[=:]\s*€?\s*(?P<total>` + labelAmountExpr + `)\s*€?)?$`)
	// Beurre doux 8,50€/kg
	reListPrice = regexp.MustCompile(`^(?P<name>.*?\pL.*?)\s+€?\s*(?P<unit_price>\d+(?:[.,]\d{1,3})?)\s*€?\s*/\s*(?P<unit>\pL+)$`)

	reTotalHT       = regexp.MustCompile(`(?i)\btotal\s*h\.?\s*t\.?\s*(?:[:=]\s*)?€?\s*(?P<amount>` + labelAmountExpr + `)`)
	reTotalTTC      = regexp.MustCompile(`(?i)(?:\btotal\s*t\.?\s*t\.?\s*c\.?|\bnet\s+[àa]\s+payer)\s*(?:[:=]\s*)?€?\s*(?P<amount>` + labelAmountExpr + `)`)
	reInvoiceNumber = regexp.MustCompile(`(?i)\bfacture\s*n\s*[°ºo]\s*[:.]?\s*(?P<number>[A-Z0-9][A-Z0-9\-/]*)`)
	reMoney         = regexp.MustCompile(`\d+[.,]\d{2}\b`)
)

// InvoiceExtractor extracts supplier, product lines and totals from an
// invoice segment
type InvoiceExtractor struct {
	lib       *SignatureLibrary
	engine    *PatternEngine
	matcher   *catalog.Matcher
	keywords  keywordFilter
	ambiguous PriceRole
	tolerance decimal.Decimal
}

// NewInvoiceExtractor creates an InvoiceExtractor. The signature library is
// the one used for segmentation; the matcher is the one used for items.
func NewInvoiceExtractor(rules Rules, lib *SignatureLibrary, engine *PatternEngine, matcher *catalog.Matcher) *InvoiceExtractor {
	if engine == nil {
		engine = NewPatternEngine()
	}
	if matcher == nil {
		matcher = catalog.NewMatcher(nil)
	}
	return &InvoiceExtractor{
		lib:       lib,
		engine:    engine,
		matcher:   matcher,
		keywords:  newKeywordFilter(rules.ForbiddenKeywords),
		ambiguous: rules.AmbiguousPriceRole,
		tolerance: rules.PriceTolerance,
	}
}

// Extract parses one invoice segment. Supplier and product names are resolved
// against snap.
func (x *InvoiceExtractor) Extract(text string, snap *catalog.Snapshot) ParsedInvoiceData {
	lines := splitLines(text)
	data := ParsedInvoiceData{
		Products:    []InvoiceLine{},
		InvoiceDate: findDate(text),
	}
	if m := reInvoiceNumber.FindStringSubmatch(text); m != nil {
		data.InvoiceNumber = m[reInvoiceNumber.SubexpIndex("number")]
	}

	data.SupplierName = x.supplierName(lines)
	if data.SupplierName != "" {
		res := x.matcher.Match(data.SupplierName, snap, catalog.KindSupplier)
		data.SupplierID = res.EntryID
		data.SupplierMatchConfidence = res.Confidence
	}

	for i, raw := range lines {
		ln := i + 1
		line := strings.TrimSpace(raw)
		if !hasAlnum(line) {
			continue
		}
		if amount, ok := labelAmount(reTotalHT, line); ok {
			if data.TotalHT == nil {
				data.TotalHT = &amount
			}
			continue
		}
		if amount, ok := labelAmount(reTotalTTC, line); ok {
			if data.TotalTTC == nil {
				data.TotalTTC = &amount
			}
			continue
		}

		product, ok := x.parseLine(line)
		if !ok {
			if _, bad := x.keywords.match(line); bad && reMoney.MatchString(line) {
				data.Skipped = append(data.Skipped, SkippedLine{Line: ln, Text: line, Reason: CodeForbiddenKeyword})
			} else if reMoney.MatchString(line) && hasLetter(line) {
				data.Skipped = append(data.Skipped, SkippedLine{Line: ln, Text: line, Reason: CodePriceParseFailure})
			}
			continue
		}
		if _, bad := x.keywords.match(product.Name); bad {
			data.Skipped = append(data.Skipped, SkippedLine{Line: ln, Text: line, Reason: CodeForbiddenKeyword})
			continue
		}
		product.Line = ln
		product.RawLine = line
		product.Match = x.matcher.Match(product.Name, snap, catalog.KindProduct, catalog.KindPreparation)
		data.Products = append(data.Products, product)
	}

	data.Warnings = x.check(data)
	return data
}

// parseLine tries the invoice grammar, then the price list grammar, then the
// receipt notations.
func (x *InvoiceExtractor) parseLine(line string) (InvoiceLine, bool) {
	if m := reInvoiceLine.FindStringSubmatch(line); m != nil {
		qty, err := ParseAmount(m[reInvoiceLine.SubexpIndex("qty")])
		unitPrice, perr := ParseAmount(m[reInvoiceLine.SubexpIndex("unit_price")])
		if err == nil && perr == nil && qty.IsPositive() {
			out := InvoiceLine{
				Name:      cleanName(m[reInvoiceLine.SubexpIndex("name")]),
				Quantity:  qty,
				Unit:      strings.ToLower(m[reInvoiceLine.SubexpIndex("unit")]),
				UnitPrice: &unitPrice,
			}
			if t := m[reInvoiceLine.SubexpIndex("total")]; t != "" {
				if total, err := ParseAmount(t); err == nil {
					out.TotalPrice = &total
				}
			}
			return out, hasLetter(out.Name)
		}
	}

	if m := reListPrice.FindStringSubmatch(line); m != nil {
		if unitPrice, err := ParseAmount(m[reListPrice.SubexpIndex("unit_price")]); err == nil {
			out := InvoiceLine{
				Name:      cleanName(m[reListPrice.SubexpIndex("name")]),
				Quantity:  decimal.NewFromInt(1),
				Unit:      strings.ToLower(m[reListPrice.SubexpIndex("unit")]),
				UnitPrice: &unitPrice,
			}
			return out, hasLetter(out.Name)
		}
	}

	if m, ok := x.engine.Extract(line); ok {
		out := InvoiceLine{Name: m.Name, Quantity: decimal.NewFromInt(int64(m.Quantity))}
		price := m.Price
		role := m.Role
		if role == PriceRoleAmbiguous {
			role = x.ambiguous
		}
		if role == PriceRoleUnit {
			out.UnitPrice = &price
		} else {
			out.TotalPrice = &price
		}
		return out, true
	}
	return InvoiceLine{}, false
}

// supplierName prefers a known supplier signature and falls back to the first
// line that is neither a marker nor a total.
func (x *InvoiceExtractor) supplierName(lines []string) string {
	if x.lib != nil {
		if name, ok := x.lib.Supplier(lines); ok {
			return name
		}
	}
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if !hasLetter(line) {
			continue
		}
		if x.lib != nil {
			if _, ok := x.lib.matchLine(line); ok {
				return ""
			}
		}
		if reTotalHT.MatchString(line) || reTotalTTC.MatchString(line) {
			return ""
		}
		return cleanName(line)
	}
	return ""
}

// check raises advisory warnings when prices and totals disagree
func (x *InvoiceExtractor) check(data ParsedInvoiceData) []Warning {
	var warnings []Warning
	sum := decimal.Zero
	complete := len(data.Products) > 0

	for _, p := range data.Products {
		var lineTotal decimal.Decimal
		switch {
		case p.UnitPrice != nil && p.TotalPrice != nil:
			expected := p.UnitPrice.Mul(p.Quantity)
			if !withinTolerance(*p.TotalPrice, expected, x.tolerance) {
				warnings = append(warnings, Warning{
					Code:    CodePriceMismatch,
					Message: fmt.Sprintf("%s: %s x %s = %s, line says %s", p.Name, p.Quantity, p.UnitPrice.StringFixed(2), expected.StringFixed(2), p.TotalPrice.StringFixed(2)),
					Line:    p.Line,
				})
			}
			lineTotal = *p.TotalPrice
		case p.TotalPrice != nil:
			lineTotal = *p.TotalPrice
		case p.UnitPrice != nil:
			lineTotal = p.UnitPrice.Mul(p.Quantity)
		default:
			complete = false
		}
		sum = sum.Add(lineTotal)
	}

	if complete && data.TotalHT != nil && !withinTolerance(sum, *data.TotalHT, x.tolerance) {
		warnings = append(warnings, Warning{
			Code:    CodeTotalMismatch,
			Message: fmt.Sprintf("lines sum to %s, total HT is %s", sum.StringFixed(2), data.TotalHT.StringFixed(2)),
		})
	}
	if data.TotalHT != nil && data.TotalTTC != nil && data.TotalTTC.LessThan(*data.TotalHT) {
		warnings = append(warnings, Warning{
			Code:    CodeTotalMismatch,
			Message: fmt.Sprintf("total TTC %s is below total HT %s", data.TotalTTC.StringFixed(2), data.TotalHT.StringFixed(2)),
		})
	}
	return warnings
}

func labelAmount(re *regexp.Regexp, line string) (decimal.Decimal, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return decimal.Zero, false
	}
	amount, err := ParseAmount(m[re.SubexpIndex("amount")])
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}
