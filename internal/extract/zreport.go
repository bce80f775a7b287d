package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zombor/cuisine-ocr/internal/catalog"
)

// ZReportData is the structured content of a Z-report
type ZReportData struct {
	ReportDate      string                `json:"report_date,omitempty"`
	Service         string                `json:"service,omitempty"`
	Layout          ZoneLayout            `json:"layout"`
	ItemsByCategory map[string][]LineItem `json:"items_by_category"`
	GrandTotalSales *decimal.Decimal      `json:"grand_total_sales,omitempty"`
	RawItems        []LineItem            `json:"raw_items"`
	Skipped         []SkippedLine         `json:"skipped,omitempty"`
	Warnings        []Warning             `json:"warnings,omitempty"`
}

var (
	reService       = regexp.MustCompile(`\b(midi|soir|dejeuner|diner|brunch)\b`)
	reTrailingMoney = regexp.MustCompile(`(?P<amount>` + labelAmountExpr + `)\s*€?\s*$`)
)

// ZReportParser runs zone detection then item extraction over a Z-report
type ZReportParser struct {
	zones *ZoneDetector
	items *ItemExtractor
}

// NewZReportParser creates a ZReportParser
func NewZReportParser(zones *ZoneDetector, items *ItemExtractor) *ZReportParser {
	return &ZReportParser{zones: zones, items: items}
}

// Parse extracts the items of every zone. Lines outside the zones, such as
// the header and the footer totals, are never read as items.
func (p *ZReportParser) Parse(text string) ZReportData {
	lines := splitLines(text)
	layout, warnings := p.zones.Detect(lines)

	data := ZReportData{
		ReportDate:      findDate(text),
		Layout:          layout,
		ItemsByCategory: map[string][]LineItem{},
		RawItems:        []LineItem{},
		Warnings:        warnings,
	}
	if m := reService.FindStringSubmatch(catalog.Fold(text)); m != nil {
		data.Service = m[1]
	}
	if layout.FooterLine > 0 {
		footer := strings.TrimSpace(lines[layout.FooterLine-1])
		if m := reTrailingMoney.FindStringSubmatch(footer); m != nil {
			if amount, err := ParseAmount(m[1]); err == nil {
				data.GrandTotalSales = &amount
			}
		}
	}

	for _, zone := range layout.Zones {
		out := p.items.Extract(zone, lines)
		if len(out.Items) > 0 {
			data.ItemsByCategory[zone.Category] = append(data.ItemsByCategory[zone.Category], out.Items...)
		}
		data.RawItems = append(data.RawItems, out.Items...)
		data.Skipped = append(data.Skipped, out.Skipped...)
		data.Warnings = append(data.Warnings, out.Warnings...)
	}
	return data
}
