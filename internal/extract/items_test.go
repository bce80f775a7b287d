package extract

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("ItemExtractor", func() {
	var (
		rules     Rules
		extractor *ItemExtractor
		zone      CategoryZone
		lines     []string
		out       ZoneItems
	)

	BeforeEach(func() {
		rules = DefaultRules()
		lines = []string{
			"x12) Plats 420,00",
			"  (x5) Linguine aux palourdes 140,00",
			"  TVA 20% restaurant: 480,00",
			"  (x2) Menu service midi 60,00",
			"  Salade verte",
			"  ----------",
			"  (x5) Boeuf bourguignon 220,00",
		}
		amount := decimal.RequireFromString("420")
		zone = CategoryZone{
			Category:         "Plats",
			HeaderLine:       1,
			StartLine:        2,
			EndLine:          7,
			DeclaredQuantity: 10,
			DeclaredAmount:   &amount,
		}
	})

	JustBeforeEach(func() {
		extractor = NewItemExtractor(rules, nil)
		out = extractor.Extract(zone, lines)
	})

	It("should extract the dish lines", func() {
		Expect(out.Items).To(HaveLen(2))
		Expect(out.Items[0].Name).To(Equal("Linguine aux palourdes"))
		Expect(out.Items[0].Line).To(Equal(2))
		Expect(out.Items[0].Category).To(Equal("Plats"))
		Expect(out.Items[1].Name).To(Equal("Boeuf bourguignon"))
		Expect(out.Items[1].Line).To(Equal(7))
	})

	It("should never return a name holding a forbidden keyword", func() {
		filter := newKeywordFilter(rules.ForbiddenKeywords)
		for _, item := range out.Items {
			_, bad := filter.match(item.Name)
			Expect(bad).To(BeFalse(), item.Name)
		}
	})

	It("should report skipped lines with a reason", func() {
		Expect(out.Skipped).To(Equal([]SkippedLine{
			{Line: 3, Text: "TVA 20% restaurant: 480,00", Reason: CodeForbiddenKeyword},
			{Line: 4, Text: "(x2) Menu service midi 60,00", Reason: CodeForbiddenKeyword},
			{Line: 5, Text: "Salade verte", Reason: CodePriceParseFailure},
		}))
	})

	It("should read prefix multiplier prices as line totals", func() {
		item := out.Items[0]
		Expect(item.PriceRole).To(Equal(PriceRoleAmbiguous))
		Expect(item.UnitPrice).To(BeNil())
		Expect(item.TotalPrice).NotTo(BeNil())
		Expect(item.TotalPrice.Equal(decimal.RequireFromString("140"))).To(BeTrue())
	})

	It("should cross-check the declared quantity and amount", func() {
		Expect(out.Warnings).To(HaveLen(1))
		Expect(out.Warnings[0].Code).To(Equal(CodeCategoryAmountMismatch))
		Expect(out.Warnings[0].Line).To(Equal(1))
	})

	When("ambiguous prices are configured as unit prices", func() {
		BeforeEach(func() {
			rules.AmbiguousPriceRole = PriceRoleUnit
		})

		It("should store the price as the unit price", func() {
			item := out.Items[0]
			Expect(item.TotalPrice).To(BeNil())
			Expect(item.UnitPrice).NotTo(BeNil())
			total, ok := item.LineTotal()
			Expect(ok).To(BeTrue())
			Expect(total.Equal(decimal.RequireFromString("700"))).To(BeTrue())
		})
	})

	When("the declared quantity disagrees", func() {
		BeforeEach(func() {
			zone.DeclaredQuantity = 12
			amount := decimal.RequireFromString("360")
			zone.DeclaredAmount = &amount
		})

		It("should warn about the quantity only", func() {
			Expect(out.Warnings).To(HaveLen(1))
			Expect(out.Warnings[0].Code).To(Equal(CodeCategoryQuantityMismatch))
		})
	})

	When("the zone is empty", func() {
		BeforeEach(func() {
			zone.StartLine = 2
			zone.EndLine = 1
		})

		It("should return nothing", func() {
			Expect(out.Items).To(BeEmpty())
			Expect(out.Skipped).To(BeEmpty())
			Expect(out.Warnings).To(BeEmpty())
		})
	})
})
