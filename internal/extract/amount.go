package extract

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// itemPriceExpr matches a price inside an item or category header line:
// "1 000,00" and "1.000,00" as well as plain "1000,00". Dot grouping needs a
// decimal comma, otherwise "1.000" would read as one euro.
const itemPriceExpr = `\d{1,3}(?:[ \x{00A0}\x{202F}]\d{3})+(?:[.,]\d{1,2})?|\d{1,3}(?:\.\d{3})+,\d{1,2}|\d+(?:[.,]\d{1,2})?`

// labelAmountExpr matches a label-anchored amount, thousands separators allowed
const labelAmountExpr = `\d{1,3}(?:[ \x{00A0}\x{202F}.]\d{3})+(?:,\d{1,2})?|\d+(?:[.,]\d{1,2})?`

// ParseAmount parses a French or English formatted amount. "€" and spaces
// are ignored; when both separators appear, the last one is the decimal mark.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '€', ' ', '\u00a0', '\u202f', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return d, nil
}

// withinTolerance reports whether got is within the relative tolerance of
// want, with a one cent floor.
func withinTolerance(got, want, tolerance decimal.Decimal) bool {
	limit := want.Abs().Mul(tolerance)
	if floor := decimal.New(1, -2); limit.LessThan(floor) {
		limit = floor
	}
	return got.Sub(want).Abs().LessThanOrEqual(limit)
}
