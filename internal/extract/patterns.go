package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// PriceMatch is a quantity/name/price notation recognized in one line
type PriceMatch struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
	Role     PriceRole
	Pattern  string
}

type pricePattern struct {
	name     string
	re       *regexp.Regexp
	role     PriceRole
	nameIdx  int
	qtyIdx   int
	priceIdx int
}

// PatternEngine recognizes price notations by trying an ordered list of
// patterns. The first pattern that yields a valid match wins.
type PatternEngine struct {
	patterns []pricePattern
}

// NewPatternEngine creates an engine with the French receipt notations, most
// specific first.
func NewPatternEngine() *PatternEngine {
	e := &PatternEngine{}
	// (x3) Linguine aux palourdes 28,00
	e.mustAdd("paren_prefix", `^\(\s*[xX]\s*(?P<qty>\d+)\s*\)\s*(?P<name>.+?)\s+€?\s*(?P<price>`+itemPriceExpr+`)\s*€?$`, PriceRoleAmbiguous)
	// 3x Café gourmand 7,50
	e.mustAdd("bare_prefix", `^(?P<qty>\d+)\s*[xX]\s+(?P<name>.+?)\s+€?\s*(?P<price>`+itemPriceExpr+`)\s*€?$`, PriceRoleAmbiguous)
	// Café €2,50 x 3
	e.mustAdd("suffix_currency", `^(?P<name>.+?)\s+€\s*(?P<price>`+itemPriceExpr+`)\s*[xX×]\s*(?P<qty>\d+)$`, PriceRoleUnit)
	// Café 2,50 x 3
	e.mustAdd("bare_suffix", `^(?P<name>.+?)\s+(?P<price>`+itemPriceExpr+`)\s*€?\s*[xX×]\s*(?P<qty>\d+)$`, PriceRoleUnit)
	return e
}

// Add appends a notation after the existing ones. The expression must define
// the named groups name, qty and price.
func (e *PatternEngine) Add(name, expr string, role PriceRole) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("compiling pattern %s: %w", name, err)
	}
	p := pricePattern{
		name:     name,
		re:       re,
		role:     role,
		nameIdx:  re.SubexpIndex("name"),
		qtyIdx:   re.SubexpIndex("qty"),
		priceIdx: re.SubexpIndex("price"),
	}
	if p.nameIdx < 0 || p.qtyIdx < 0 || p.priceIdx < 0 {
		return fmt.Errorf("pattern %s must define name, qty and price groups", name)
	}
	e.patterns = append(e.patterns, p)
	return nil
}

func (e *PatternEngine) mustAdd(name, expr string, role PriceRole) {
	if err := e.Add(name, expr, role); err != nil {
		panic(err)
	}
}

// Patterns returns the pattern names in priority order
func (e *PatternEngine) Patterns() []string {
	names := make([]string, len(e.patterns))
	for i, p := range e.patterns {
		names[i] = p.name
	}
	return names
}

// Extract recognizes a single line. Quantities must be positive and names
// must contain a letter.
func (e *PatternEngine) Extract(line string) (PriceMatch, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return PriceMatch{}, false
	}
	for _, p := range e.patterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[p.qtyIdx])
		if err != nil || qty <= 0 {
			continue
		}
		price, err := ParseAmount(m[p.priceIdx])
		if err != nil {
			continue
		}
		name := cleanName(m[p.nameIdx])
		if !hasLetter(name) {
			continue
		}
		return PriceMatch{
			Name:     name,
			Quantity: qty,
			Price:    price,
			Role:     p.role,
			Pattern:  p.name,
		}, true
	}
	return PriceMatch{}, false
}

func cleanName(s string) string {
	return strings.Join(strings.Fields(strings.Trim(s, " \t-:.·*")), " ")
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func hasAlnum(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
