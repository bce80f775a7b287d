package catalog

import (
	"github.com/shopspring/decimal"
)

// Kind is the type of a catalog entry
type Kind string

const (
	KindRecipe      Kind = "recipe"
	KindProduct     Kind = "product"
	KindPreparation Kind = "preparation"
	KindSupplier    Kind = "supplier"
)

// Entry is a known name in the catalog
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Ingredient is one line of a recipe composition. Quantity is expressed for
// one batch of the recipe, which yields Recipe.Portions portions.
type Ingredient struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit,omitempty"`
}

// Recipe holds the composition of a recipe entry
type Recipe struct {
	ID          string       `json:"id"`
	Portions    int          `json:"portions"`
	Ingredients []Ingredient `json:"ingredients"`
}

// Snapshot is a read-only view of the catalog and the current stock, taken
// once before a parse run. It is never mutated after construction and is safe
// to share between goroutines.
type Snapshot struct {
	entries []Entry
	byID    map[string]int
	recipes map[string]Recipe
	stock   map[string]decimal.Decimal
}

// NewSnapshot copies its inputs into a new Snapshot. Entry order is kept and is
// the tie-break order used by resolvers. Recipes without a portion count yield
// one portion.
func NewSnapshot(entries []Entry, recipes []Recipe, stock map[string]decimal.Decimal) *Snapshot {
	s := &Snapshot{
		entries: make([]Entry, len(entries)),
		byID:    make(map[string]int, len(entries)),
		recipes: make(map[string]Recipe, len(recipes)),
		stock:   make(map[string]decimal.Decimal, len(stock)),
	}
	copy(s.entries, entries)
	for i, e := range s.entries {
		if _, ok := s.byID[e.ID]; !ok {
			s.byID[e.ID] = i
		}
	}
	for _, r := range recipes {
		if r.Portions <= 0 {
			r.Portions = 1
		}
		r.Ingredients = append([]Ingredient(nil), r.Ingredients...)
		s.recipes[r.ID] = r
	}
	for id, qty := range stock {
		s.stock[id] = qty
	}
	return s
}

// Entries returns the entries of the given kinds in snapshot order. With no
// kinds, all entries are returned.
func (s *Snapshot) Entries(kinds ...Kind) []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if len(kinds) == 0 || hasKind(kinds, e.Kind) {
			out = append(out, e)
		}
	}
	return out
}

// Entry looks up an entry by ID
func (s *Snapshot) Entry(id string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Recipe looks up the composition of a recipe entry
func (s *Snapshot) Recipe(id string) (Recipe, bool) {
	if s == nil {
		return Recipe{}, false
	}
	r, ok := s.recipes[id]
	return r, ok
}

// Stock returns the current stock of a product or preparation. Unknown IDs
// have zero stock.
func (s *Snapshot) Stock(id string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	return s.stock[id]
}

// Len returns the number of entries
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
