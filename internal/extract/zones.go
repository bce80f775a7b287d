package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/zombor/cuisine-ocr/internal/catalog"
)

// CategoryZone is the line range of a Z-report attributed to one category.
// Line numbers are 1-based and inclusive; an empty zone has EndLine < StartLine.
type CategoryZone struct {
	Category         string           `json:"category"`
	HeaderLine       int              `json:"header_line,omitempty"`
	StartLine        int              `json:"start_line"`
	EndLine          int              `json:"end_line"`
	DeclaredQuantity int              `json:"declared_quantity,omitempty"`
	DeclaredAmount   *decimal.Decimal `json:"declared_amount,omitempty"`
}

// ZoneLayout is the result of zone detection
type ZoneLayout struct {
	Zones             []CategoryZone `json:"zones"`
	EntreesEndLine    int            `json:"entrees_end_line,omitempty"`
	DessertsStartLine int            `json:"desserts_start_line,omitempty"`
	FooterLine        int            `json:"footer_line,omitempty"`
	Implicit          bool           `json:"implicit"`
}

var reCategoryHeader = regexp.MustCompile(`^[xX]\s*(?P<qty>\d+)\s*\)\s*(?P<name>.*?\pL.*?)\s*:?\s+€?\s*(?P<amount>` + itemPriceExpr + `)\s*€?$`)

type categoryAlias struct {
	category string
	alias    string
}

// ZoneDetector delimits the category zones of a Z-report
type ZoneDetector struct {
	aliases         []categoryAlias
	footers         []*regexp.Regexp
	defaultCategory string
	entrees         string
	desserts        string
}

// NewZoneDetector creates a ZoneDetector from the category and footer rules
func NewZoneDetector(rules Rules) (*ZoneDetector, error) {
	d := &ZoneDetector{
		defaultCategory: rules.DefaultCategory,
		entrees:         rules.EntreesCategory,
		desserts:        rules.DessertsCategory,
	}
	for _, c := range rules.Categories {
		d.aliases = append(d.aliases, categoryAlias{category: c.Name, alias: catalog.Normalize(c.Name)})
		for _, a := range c.Aliases {
			d.aliases = append(d.aliases, categoryAlias{category: c.Name, alias: catalog.Normalize(a)})
		}
	}
	for _, expr := range rules.FooterLabels {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compiling footer label %q: %w", expr, err)
		}
		d.footers = append(d.footers, re)
	}
	return d, nil
}

// Detect scans lines top to bottom. A category header closes the open zone
// on the line before it and opens a new zone on the line after it; a footer
// total closes the open zone and ends the scan. A total label with another
// category header below it is a category subtotal and stays inside its zone.
// Without any header the whole document before the footer becomes one
// implicit zone and a zone_ambiguous warning is returned.
func (d *ZoneDetector) Detect(lines []string) (ZoneLayout, []Warning) {
	var (
		layout ZoneLayout
		open   = -1
	)

	closeOpen := func(end int) {
		if open >= 0 {
			layout.Zones[open].EndLine = end
			open = -1
		}
	}

	headers := make([]*CategoryZone, len(lines))
	lastHeader := -1
	for i, raw := range lines {
		if zone, ok := d.header(raw); ok {
			headers[i] = &zone
			lastHeader = i
		}
	}

	for i, raw := range lines {
		ln := i + 1
		if open >= 0 && i > lastHeader && d.isFooter(raw) {
			closeOpen(ln - 1)
			layout.FooterLine = ln
			break
		}
		if headers[i] == nil {
			continue
		}
		zone := *headers[i]
		closeOpen(ln - 1)
		zone.HeaderLine = ln
		zone.StartLine = ln + 1
		zone.EndLine = ln
		layout.Zones = append(layout.Zones, zone)
		open = len(layout.Zones) - 1
	}
	closeOpen(len(lines))

	if len(layout.Zones) == 0 {
		end := len(lines)
		for i, raw := range lines {
			if d.isFooter(raw) {
				layout.FooterLine = i + 1
				end = i
				break
			}
		}
		layout.Implicit = true
		layout.Zones = []CategoryZone{{Category: d.defaultCategory, StartLine: 1, EndLine: end}}
		return layout, []Warning{{
			Code:    CodeZoneAmbiguous,
			Message: fmt.Sprintf("no category header found, lines 1-%d parsed as %s", end, d.defaultCategory),
		}}
	}

	for _, z := range layout.Zones {
		if z.Category == d.entrees && layout.EntreesEndLine == 0 {
			layout.EntreesEndLine = z.EndLine
		}
		if z.Category == d.desserts && layout.DessertsStartLine == 0 {
			layout.DessertsStartLine = z.StartLine
		}
	}
	return layout, nil
}

// header recognizes "x25) Entrées 850,00" and bare category titles. Indented
// or parenthesized lines are dish lines, never headers.
func (d *ZoneDetector) header(raw string) (CategoryZone, bool) {
	if raw == "" || unicode.IsSpace([]rune(raw)[0]) {
		return CategoryZone{}, false
	}
	line := strings.TrimSpace(raw)

	if m := reCategoryHeader.FindStringSubmatch(line); m != nil {
		category, ok := d.category(m[reCategoryHeader.SubexpIndex("name")])
		if !ok {
			return CategoryZone{}, false
		}
		zone := CategoryZone{Category: category}
		zone.DeclaredQuantity, _ = strconv.Atoi(m[reCategoryHeader.SubexpIndex("qty")])
		if amount, err := ParseAmount(m[reCategoryHeader.SubexpIndex("amount")]); err == nil {
			zone.DeclaredAmount = &amount
		}
		return zone, true
	}

	if category, ok := d.category(strings.TrimRight(line, " :")); ok {
		return CategoryZone{Category: category}, true
	}
	return CategoryZone{}, false
}

// category maps a header name to a configured category. The whole name must
// be an alias, so "Plat du jour" is a dish and not a Plats header.
func (d *ZoneDetector) category(name string) (string, bool) {
	n := catalog.Normalize(name)
	for _, a := range d.aliases {
		if n == a.alias {
			return a.category, true
		}
	}
	return "", false
}

func (d *ZoneDetector) isFooter(line string) bool {
	for _, re := range d.footers {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
