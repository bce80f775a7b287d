package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/shopspring/decimal"
)

// ErrInvalidRules is returned when a Rules value fails validation
var ErrInvalidRules = errors.New("invalid extraction rules")

// PriceRole says how a matched price numeral relates to the line
type PriceRole string

const (
	PriceRoleUnit      PriceRole = "unit"
	PriceRoleTotal     PriceRole = "total"
	PriceRoleAmbiguous PriceRole = "ambiguous"
)

// Category is a Z-report sales category and the spellings that introduce it
type Category struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// Rules is the configuration shared by every extraction component. It is
// passed by value into constructors and never modified afterwards.
type Rules struct {
	// ForbiddenKeywords are never allowed inside an item name
	ForbiddenKeywords []string `json:"forbidden_keywords"`
	// Categories are the Z-report sales categories in their usual order
	Categories []Category `json:"categories"`
	// DefaultCategory names the implicit zone used when no header is found
	DefaultCategory string `json:"default_category"`
	// EntreesCategory and DessertsCategory name the categories whose
	// boundaries are reported on Z-reports
	EntreesCategory  string `json:"entrees_category"`
	DessertsCategory string `json:"desserts_category"`
	// FooterLabels are regular expressions for the closing totals of a Z-report
	FooterLabels []string `json:"footer_labels"`

	// Suppliers are known supplier names used as header signatures
	Suppliers []string `json:"suppliers"`
	// InvoiceMarkers are regular expressions that start a new invoice
	InvoiceMarkers []string `json:"invoice_markers"`
	// SignatureWindow is the number of lines over which signature hits merge
	// into one invoice boundary
	SignatureWindow int `json:"signature_window"`

	// HeaderKeywords are structural anchors for quality scoring
	HeaderKeywords []string `json:"header_keywords"`
	// QualityThreshold is the score below which a segment is rejected
	QualityThreshold float64 `json:"quality_threshold"`
	// MinSegmentChars is the length under which a segment is too short
	MinSegmentChars int `json:"min_segment_chars"`
	// NoiseThreshold is the lowest acceptable ratio of legible characters
	NoiseThreshold float64 `json:"noise_threshold"`

	// PriceTolerance is the relative tolerance of unit_price*qty vs total
	PriceTolerance decimal.Decimal `json:"price_tolerance"`
	// AmbiguousPriceRole is the convention applied to prefix-multiplier prices
	AmbiguousPriceRole PriceRole `json:"ambiguous_price_role"`
}

// DefaultRules returns the rules for French restaurant paperwork
func DefaultRules() Rules {
	return Rules{
		ForbiddenKeywords: []string{
			"tva", "total", "sous-total", "remise", "service", "ht", "ttc",
			"solde", "espèce", "carte", "chèque", "pourboire",
		},
		Categories: []Category{
			{Name: "Entrées", Aliases: []string{"entrees", "entree", "hors d'oeuvre"}},
			{Name: "Plats", Aliases: []string{"plats principaux", "plat principal", "plats", "plat"}},
			{Name: "Desserts", Aliases: []string{"desserts", "dessert"}},
			{Name: "Bar", Aliases: []string{"bar", "boissons"}},
			{Name: "Autres", Aliases: []string{"autres", "divers"}},
		},
		DefaultCategory:  "Autres",
		EntreesCategory:  "Entrées",
		DessertsCategory: "Desserts",
		FooterLabels: []string{
			`(?i)^\s*total\s+(g[ée]n[ée]ral|ventes|journ[ée]e|ttc)\b`,
			`(?i)^\s*grand\s+total\b`,
			`(?i)^\s*ca\s+ttc\b`,
		},
		Suppliers: []string{
			"Metro", "Transgourmet", "Pomona", "Promocash", "Sysco",
			"Brake France", "Davigel", "France Boissons",
		},
		InvoiceMarkers: []string{
			`(?i)\bfacture\s*n\s*[°ºo]`,
			`(?i)\bbon\s+de\s+livraison\b`,
		},
		SignatureWindow: 6,
		HeaderKeywords: []string{
			"facture", "bon de livraison", "avoir", "ticket", "rapport",
			"cloture", "caisse", "mercuriale", "tarif",
		},
		QualityThreshold:   0.6,
		MinSegmentChars:    200,
		NoiseThreshold:     0.85,
		PriceTolerance:     decimal.RequireFromString("0.01"),
		AmbiguousPriceRole: PriceRoleTotal,
	}
}

// LoadRules decodes a JSON document over the default rules and validates the
// result. Fields missing from the document keep their defaults.
func LoadRules(r io.Reader) (Rules, error) {
	rules := DefaultRules()
	if err := json.NewDecoder(r).Decode(&rules); err != nil {
		return Rules{}, fmt.Errorf("decoding rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate checks that the rules can drive the extraction components
func (r Rules) Validate() error {
	if len(r.ForbiddenKeywords) == 0 {
		return fmt.Errorf("%w: forbidden keyword list is empty", ErrInvalidRules)
	}
	if len(r.Categories) == 0 {
		return fmt.Errorf("%w: category list is empty", ErrInvalidRules)
	}
	if r.DefaultCategory == "" {
		return fmt.Errorf("%w: default category is required", ErrInvalidRules)
	}
	if r.QualityThreshold < 0 || r.QualityThreshold > 1 {
		return fmt.Errorf("%w: quality threshold %v outside [0,1]", ErrInvalidRules, r.QualityThreshold)
	}
	if r.NoiseThreshold < 0 || r.NoiseThreshold > 1 {
		return fmt.Errorf("%w: noise threshold %v outside [0,1]", ErrInvalidRules, r.NoiseThreshold)
	}
	if r.MinSegmentChars <= 0 {
		return fmt.Errorf("%w: minimum segment length must be positive", ErrInvalidRules)
	}
	if r.SignatureWindow < 0 {
		return fmt.Errorf("%w: signature window must not be negative", ErrInvalidRules)
	}
	if r.PriceTolerance.IsNegative() {
		return fmt.Errorf("%w: price tolerance must not be negative", ErrInvalidRules)
	}
	if r.AmbiguousPriceRole != PriceRoleUnit && r.AmbiguousPriceRole != PriceRoleTotal {
		return fmt.Errorf("%w: ambiguous price role must be %q or %q", ErrInvalidRules, PriceRoleUnit, PriceRoleTotal)
	}
	for _, expr := range append(append([]string{}, r.InvoiceMarkers...), r.FooterLabels...) {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("%w: pattern %q: %v", ErrInvalidRules, expr, err)
		}
	}
	return nil
}
