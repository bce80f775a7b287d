package extract

import (
	"github.com/zombor/cuisine-ocr/internal/catalog"
)

// MatchResult links a sold line item to a catalog entry
type MatchResult struct {
	LineItem         LineItem       `json:"line_item"`
	MatchedCatalogID string         `json:"matched_catalog_id,omitempty"`
	MatchedName      string         `json:"matched_name,omitempty"`
	Kind             catalog.Kind   `json:"kind,omitempty"`
	Confidence       float64        `json:"confidence"`
	Method           catalog.Method `json:"method"`
	NeedsCreation    bool           `json:"needs_creation"`
}

// MatchItems resolves every item against the recipes, products and
// preparations of snap, in item order.
func MatchItems(items []LineItem, m *catalog.Matcher, snap *catalog.Snapshot) []MatchResult {
	results := make([]MatchResult, 0, len(items))
	for _, item := range items {
		res := m.Match(item.Name, snap, catalog.KindRecipe, catalog.KindProduct, catalog.KindPreparation)
		results = append(results, MatchResult{
			LineItem:         item,
			MatchedCatalogID: res.EntryID,
			MatchedName:      res.EntryName,
			Kind:             res.Kind,
			Confidence:       res.Confidence,
			Method:           res.Method,
			NeedsCreation:    res.NeedsCreation,
		})
	}
	return results
}
