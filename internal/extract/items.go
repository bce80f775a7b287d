package extract

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zombor/cuisine-ocr/internal/catalog"
)

// LineItem is one sold dish line of a Z-report
type LineItem struct {
	Line       int              `json:"line"`
	RawLine    string           `json:"raw_line"`
	Name       string           `json:"name"`
	Quantity   int              `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
	TotalPrice *decimal.Decimal `json:"total_price,omitempty"`
	PriceRole  PriceRole        `json:"price_role"`
	Category   string           `json:"category"`
}

// LineTotal returns the total price of the line, computing it from the unit
// price when only that is known.
func (i LineItem) LineTotal() (decimal.Decimal, bool) {
	switch {
	case i.TotalPrice != nil:
		return *i.TotalPrice, true
	case i.UnitPrice != nil:
		return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))), true
	}
	return decimal.Zero, false
}

// SkippedLine is a content line that produced no item, and why
type SkippedLine struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason Code   `json:"reason"`
}

// ZoneItems is the output of item extraction for one zone
type ZoneItems struct {
	Items    []LineItem
	Skipped  []SkippedLine
	Warnings []Warning
}

type keywordFilter struct {
	words []string
}

func newKeywordFilter(words []string) keywordFilter {
	f := keywordFilter{words: make([]string, 0, len(words))}
	for _, w := range words {
		if w = catalog.Fold(strings.TrimSpace(w)); w != "" {
			f.words = append(f.words, w)
		}
	}
	return f
}

// match returns the first forbidden keyword contained in s
func (f keywordFilter) match(s string) (string, bool) {
	folded := catalog.Fold(s)
	for _, w := range f.words {
		if strings.Contains(folded, w) {
			return w, true
		}
	}
	return "", false
}

// ItemExtractor turns the lines of a category zone into LineItems
type ItemExtractor struct {
	engine    *PatternEngine
	keywords  keywordFilter
	ambiguous PriceRole
	tolerance decimal.Decimal
}

// NewItemExtractor creates an ItemExtractor. A nil engine selects the default
// notations.
func NewItemExtractor(rules Rules, engine *PatternEngine) *ItemExtractor {
	if engine == nil {
		engine = NewPatternEngine()
	}
	return &ItemExtractor{
		engine:    engine,
		keywords:  newKeywordFilter(rules.ForbiddenKeywords),
		ambiguous: rules.AmbiguousPriceRole,
		tolerance: rules.PriceTolerance,
	}
}

// Extract reads lines zone.StartLine..zone.EndLine of the document. Candidates
// whose name contains a forbidden keyword are dropped and reported as skipped.
func (x *ItemExtractor) Extract(zone CategoryZone, lines []string) ZoneItems {
	var out ZoneItems
	start, end := zone.StartLine, zone.EndLine
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}

	for ln := start; ln <= end; ln++ {
		raw := lines[ln-1]
		if !hasAlnum(raw) {
			continue
		}
		m, ok := x.engine.Extract(raw)
		if !ok {
			reason := CodePriceParseFailure
			if _, bad := x.keywords.match(raw); bad {
				reason = CodeForbiddenKeyword
			}
			out.Skipped = append(out.Skipped, SkippedLine{Line: ln, Text: strings.TrimSpace(raw), Reason: reason})
			continue
		}
		if _, bad := x.keywords.match(m.Name); bad {
			out.Skipped = append(out.Skipped, SkippedLine{Line: ln, Text: strings.TrimSpace(raw), Reason: CodeForbiddenKeyword})
			continue
		}

		item := LineItem{
			Line:      ln,
			RawLine:   strings.TrimSpace(raw),
			Name:      m.Name,
			Quantity:  m.Quantity,
			PriceRole: m.Role,
			Category:  zone.Category,
		}
		price := m.Price
		if x.resolveRole(m.Role) == PriceRoleUnit {
			item.UnitPrice = &price
		} else {
			item.TotalPrice = &price
		}
		out.Items = append(out.Items, item)
	}

	out.Warnings = x.crossCheck(zone, out.Items)
	return out
}

func (x *ItemExtractor) resolveRole(role PriceRole) PriceRole {
	if role == PriceRoleAmbiguous {
		return x.ambiguous
	}
	return role
}

// crossCheck compares the zone's declared quantity and amount with its items.
// Mismatches are advisory.
func (x *ItemExtractor) crossCheck(zone CategoryZone, items []LineItem) []Warning {
	if len(items) == 0 {
		return nil
	}
	var warnings []Warning

	qty := 0
	for _, it := range items {
		qty += it.Quantity
	}
	if zone.DeclaredQuantity > 0 && qty != zone.DeclaredQuantity {
		warnings = append(warnings, Warning{
			Code:    CodeCategoryQuantityMismatch,
			Message: fmt.Sprintf("%s declares %d sold, items sum to %d", zone.Category, zone.DeclaredQuantity, qty),
			Line:    zone.HeaderLine,
		})
	}

	if zone.DeclaredAmount != nil {
		sum := decimal.Zero
		for _, it := range items {
			total, ok := it.LineTotal()
			if !ok {
				return warnings
			}
			sum = sum.Add(total)
		}
		if !withinTolerance(sum, *zone.DeclaredAmount, x.tolerance) {
			warnings = append(warnings, Warning{
				Code:    CodeCategoryAmountMismatch,
				Message: fmt.Sprintf("%s declares %s, items sum to %s", zone.Category, zone.DeclaredAmount.StringFixed(2), sum.StringFixed(2)),
				Line:    zone.HeaderLine,
			})
		}
	}
	return warnings
}
