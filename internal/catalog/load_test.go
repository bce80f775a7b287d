package catalog_test

import (
	"github.com/zombor/cuisine-ocr/internal/catalog"

	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("LoadSnapshot", func() {
	var (
		doc  string
		snap *catalog.Snapshot
		err  error
	)

	JustBeforeEach(func() {
		snap, err = catalog.LoadSnapshot(strings.NewReader(doc))
	})

	When("the document is valid", func() {
		BeforeEach(func() {
			doc = `{
				"entries": [
					{"id": "r-linguine", "name": "Linguine aux palourdes", "kind": "recipe"},
					{"id": "p-palourdes", "name": "Palourdes", "kind": "product"},
					{"id": "s-metro", "name": "Metro", "kind": "supplier"}
				],
				"recipes": [
					{"id": "r-linguine", "portions": 2, "ingredients": [
						{"product_id": "p-palourdes", "quantity": "0.3", "unit": "kg"}
					]}
				],
				"stock": {"p-palourdes": 4.5}
			}`
		})

		It("should build the snapshot", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Len()).To(Equal(3))
			Expect(snap.Entries(catalog.KindRecipe)).To(HaveLen(1))
		})

		It("should load recipes and stock", func() {
			recipe, ok := snap.Recipe("r-linguine")
			Expect(ok).To(BeTrue())
			Expect(recipe.Portions).To(Equal(2))
			Expect(recipe.Ingredients[0].Quantity.Equal(decimal.RequireFromString("0.3"))).To(BeTrue())
			Expect(snap.Stock("p-palourdes").Equal(decimal.RequireFromString("4.5"))).To(BeTrue())
		})
	})

	DescribeTable("invalid documents",
		func(in string) {
			_, err := catalog.LoadSnapshot(strings.NewReader(in))
			Expect(err).To(MatchError(catalog.ErrInvalidSnapshot))
		},
		Entry("malformed JSON", `{"entries": [`),
		Entry("missing entries", `{"recipes": []}`),
		Entry("unknown kind", `{"entries": [{"id": "x", "name": "X", "kind": "vin"}]}`),
		Entry("empty name", `{"entries": [{"id": "x", "name": "", "kind": "product"}]}`),
		Entry("zero portions", `{"entries": [], "recipes": [{"id": "r", "portions": 0, "ingredients": []}]}`),
		Entry("ingredient without product", `{"entries": [], "recipes": [{"id": "r", "ingredients": [{"quantity": 1}]}]}`),
	)
})

var _ = Describe("Snapshot", func() {
	It("should default recipes to one portion", func() {
		snap := catalog.NewSnapshot(nil, []catalog.Recipe{{ID: "r"}}, nil)
		recipe, ok := snap.Recipe("r")
		Expect(ok).To(BeTrue())
		Expect(recipe.Portions).To(Equal(1))
	})

	It("should report zero stock for unknown products", func() {
		Expect(catalog.NewSnapshot(nil, nil, nil).Stock("nope").IsZero()).To(BeTrue())
	})

	It("should not be affected by changes to its inputs", func() {
		entries := []catalog.Entry{{ID: "a", Name: "A", Kind: catalog.KindProduct}}
		stock := map[string]decimal.Decimal{"a": decimal.NewFromInt(1)}
		snap := catalog.NewSnapshot(entries, nil, stock)
		entries[0].Name = "changed"
		stock["a"] = decimal.NewFromInt(9)
		e, _ := snap.Entry("a")
		Expect(e.Name).To(Equal("A"))
		Expect(snap.Stock("a").Equal(decimal.NewFromInt(1))).To(BeTrue())
	})

	It("should keep the first entry of a duplicated ID", func() {
		snap := catalog.NewSnapshot([]catalog.Entry{{ID: "a", Name: "First"}, {ID: "a", Name: "Second"}}, nil, nil)
		e, ok := snap.Entry("a")
		Expect(ok).To(BeTrue())
		Expect(e.Name).To(Equal("First"))
	})
})
