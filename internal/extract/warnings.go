package extract

// Code classifies a non-fatal extraction problem
type Code string

const (
	CodeQualityRejected          Code = "quality_rejected"
	CodeNoStructuralAnchor       Code = "no_structural_anchor"
	CodePriceParseFailure        Code = "price_parse_failure"
	CodeForbiddenKeyword         Code = "forbidden_keyword"
	CodeCatalogMiss              Code = "catalog_miss"
	CodeZoneAmbiguous            Code = "zone_ambiguous"
	CodeStockShortfall           Code = "stock_shortfall"
	CodeNoRecipeData             Code = "no_recipe_data"
	CodePriceMismatch            Code = "price_mismatch"
	CodeCategoryQuantityMismatch Code = "category_quantity_mismatch"
	CodeCategoryAmountMismatch   Code = "category_amount_mismatch"
	CodeTotalMismatch            Code = "total_mismatch"
	CodeProcessingTimeout        Code = "processing_timeout"
)

// Quality issue labels attached to segments
const (
	IssueTooShort           = "too_short"
	IssueHighNoiseRatio     = "high_noise_ratio"
	IssueNoStructuralAnchor = "no_structural_anchor"
)

// Warning is a problem a human should review before data is committed.
// Line numbers are 1-based; zero means the warning is not tied to a line.
type Warning struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Segment int    `json:"segment,omitempty"`
	Line    int    `json:"line,omitempty"`
}
