// Package deduction turns matched Z-report sales into stock deduction
// proposals. Proposals are never applied here; a human confirms them first.
package deduction

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/zombor/cuisine-ocr/internal/catalog"
	"github.com/zombor/cuisine-ocr/internal/extract"
)

// IngredientDeduction is the effect of a proposal on one product's stock
type IngredientDeduction struct {
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name"`
	Unit            string          `json:"unit,omitempty"`
	CurrentStock    decimal.Decimal `json:"current_stock"`
	DeductionAmount decimal.Decimal `json:"deduction_amount"`
	ResultingStock  decimal.Decimal `json:"resulting_stock"`
}

// StockDeductionProposal groups the deductions caused by one sold recipe
type StockDeductionProposal struct {
	RecipeID             string                `json:"recipe_id"`
	RecipeName           string                `json:"recipe_name"`
	QuantitySold         int                   `json:"quantity_sold"`
	IngredientDeductions []IngredientDeduction `json:"ingredient_deductions"`
	Warnings             []string              `json:"warnings"`
}

// Result holds the proposals and the per-product totals across all of them
type Result struct {
	Proposals        []StockDeductionProposal `json:"proposals"`
	IngredientTotals []IngredientDeduction    `json:"ingredient_totals"`
	Warnings         []extract.Warning        `json:"warnings,omitempty"`
}

// Calculator computes stock deductions from a catalog snapshot
type Calculator struct {
	places int32
}

// NewCalculator creates a Calculator rounding deductions to 4 places
func NewCalculator() *Calculator {
	return &Calculator{places: 4}
}

type soldGroup struct {
	entry catalog.Entry
	qty   int
}

// Compute builds one proposal per sold catalog entry, in order of first
// appearance. Sales of the same entry on several lines are summed. Stock is
// carried across proposals, so an ingredient shared by two recipes sees both
// deductions. A negative resulting stock is reported, not refused.
func (c *Calculator) Compute(sold []extract.MatchResult, snap *catalog.Snapshot) Result {
	result := Result{
		Proposals:        []StockDeductionProposal{},
		IngredientTotals: []IngredientDeduction{},
	}

	var groups []*soldGroup
	byID := map[string]*soldGroup{}
	for _, m := range sold {
		if m.NeedsCreation || m.MatchedCatalogID == "" {
			result.Warnings = append(result.Warnings, extract.Warning{
				Code:    extract.CodeCatalogMiss,
				Message: fmt.Sprintf("%q is not in the catalog, no deduction computed", m.LineItem.Name),
				Line:    m.LineItem.Line,
			})
			continue
		}
		g, ok := byID[m.MatchedCatalogID]
		if !ok {
			entry, found := snap.Entry(m.MatchedCatalogID)
			if !found {
				entry = catalog.Entry{ID: m.MatchedCatalogID, Name: m.MatchedName, Kind: m.Kind}
			}
			g = &soldGroup{entry: entry}
			byID[m.MatchedCatalogID] = g
			groups = append(groups, g)
		}
		g.qty += m.LineItem.Quantity
	}

	running := map[string]decimal.Decimal{}
	totals := map[string]*IngredientDeduction{}
	var totalOrder []string

	for _, g := range groups {
		proposal := StockDeductionProposal{
			RecipeID:             g.entry.ID,
			RecipeName:           g.entry.Name,
			QuantitySold:         g.qty,
			IngredientDeductions: []IngredientDeduction{},
			Warnings:             []string{},
		}

		lines := c.consumption(g, snap)
		if lines == nil {
			msg := fmt.Sprintf("%s has no recipe data", g.entry.Name)
			proposal.Warnings = append(proposal.Warnings, msg)
			result.Warnings = append(result.Warnings, extract.Warning{Code: extract.CodeNoRecipeData, Message: msg})
		}

		for _, l := range lines {
			current, ok := running[l.ProductID]
			if !ok {
				current = snap.Stock(l.ProductID)
			}
			l.CurrentStock = current
			l.ResultingStock = current.Sub(l.DeductionAmount)
			running[l.ProductID] = l.ResultingStock
			proposal.IngredientDeductions = append(proposal.IngredientDeductions, l)

			if l.ResultingStock.IsNegative() {
				msg := fmt.Sprintf("%s: stock %s, deduction %s leaves %s", l.ProductName, l.CurrentStock, l.DeductionAmount, l.ResultingStock)
				proposal.Warnings = append(proposal.Warnings, msg)
				result.Warnings = append(result.Warnings, extract.Warning{Code: extract.CodeStockShortfall, Message: msg})
			}

			t, ok := totals[l.ProductID]
			if !ok {
				t = &IngredientDeduction{
					ProductID:    l.ProductID,
					ProductName:  l.ProductName,
					Unit:         l.Unit,
					CurrentStock: snap.Stock(l.ProductID),
				}
				totals[l.ProductID] = t
				totalOrder = append(totalOrder, l.ProductID)
			}
			t.DeductionAmount = t.DeductionAmount.Add(l.DeductionAmount)
			t.ResultingStock = t.CurrentStock.Sub(t.DeductionAmount)
		}
		result.Proposals = append(result.Proposals, proposal)
	}

	for _, id := range totalOrder {
		result.IngredientTotals = append(result.IngredientTotals, *totals[id])
	}
	return result
}

// consumption returns the amount of each product used by a sold group, with
// duplicate ingredients merged. Entries without a recipe that are products or
// preparations consume themselves. It returns nil when nothing is known.
func (c *Calculator) consumption(g *soldGroup, snap *catalog.Snapshot) []IngredientDeduction {
	sold := decimal.NewFromInt(int64(g.qty))

	recipe, ok := snap.Recipe(g.entry.ID)
	if !ok {
		if g.entry.Kind == catalog.KindProduct || g.entry.Kind == catalog.KindPreparation {
			return []IngredientDeduction{{
				ProductID:       g.entry.ID,
				ProductName:     g.entry.Name,
				DeductionAmount: sold,
			}}
		}
		return nil
	}

	portions := decimal.NewFromInt(int64(recipe.Portions))
	var out []IngredientDeduction
	index := map[string]int{}
	for _, ing := range recipe.Ingredients {
		amount := ing.Quantity.Mul(sold).Div(portions).Round(c.places)
		if i, ok := index[ing.ProductID]; ok {
			out[i].DeductionAmount = out[i].DeductionAmount.Add(amount)
			continue
		}
		name := ing.ProductID
		if e, ok := snap.Entry(ing.ProductID); ok {
			name = e.Name
		}
		index[ing.ProductID] = len(out)
		out = append(out, IngredientDeduction{
			ProductID:       ing.ProductID,
			ProductName:     name,
			Unit:            ing.Unit,
			DeductionAmount: amount,
		})
	}
	if out == nil {
		out = []IngredientDeduction{}
	}
	return out
}
