package extract

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/DingoOz/receipt-scanner/internal/receipt"
)

var _ = Describe("Enhancer", func() {
	var (
		enhancer  *Enhancer
		extractor *Extractor
	)

	BeforeEach(func() {
		enhancer = NewEnhancer()
		extractor = NewExtractor()
	})

	When("the text carries a Walmart signature", func() {
		const text = `WALMART SUPERCENTER
STORE 1234

GREAT VALUE MILK 007874201510 N 3.48
BANANAS 000000004011 N 1.52

SUBTOTAL 5.00
TAX 0.40
TOTAL 5.40`

		var rec *receipt.Record

		JustBeforeEach(func() {
			rec = enhancer.Enhance(text, extractor.Extract(text, 0.9))
		})

		It("should replace the generic items with the UPC-coded lines", func() {
			Expect(rec.Items).To(HaveLen(2))
			Expect(rec.Items[0].Description).To(Equal("GREAT VALUE MILK"))
			Expect(rec.Items[0].TotalPrice.StringFixed(2)).To(Equal("3.48"))
			Expect(rec.Items[1].Description).To(Equal("BANANAS"))
		})

		It("should read the amounts with the merchant patterns", func() {
			Expect(rec.TotalAmount.StringFixed(2)).To(Equal("5.40"))
			Expect(rec.TaxAmount.StringFixed(2)).To(Equal("0.40"))
		})

		It("should categorize the items", func() {
			Expect(rec.Items[0].Category).To(Equal("food"))
			Expect(rec.Items[1].Category).To(Equal("food"))
		})
	})

	When("the text carries a restaurant signature", func() {
		const text = `STARBUCKS
2 x Coffee 9.00
TIP 2.00
TOTAL 11.00`

		var rec *receipt.Record

		JustBeforeEach(func() {
			rec = enhancer.Enhance(text, extractor.Extract(text, 0.9))
		})

		It("should parse the quantity item shape", func() {
			item, ok := findItem(rec.Items, "Coffee")
			Expect(ok).To(BeTrue())
			Expect(item.Quantity).To(Equal(2.0))
			Expect(item.UnitPrice.StringFixed(2)).To(Equal("4.50"))
			Expect(item.Category).To(Equal("beverages"))
		})

		It("should extract the tip", func() {
			Expect(rec.TipAmount.StringFixed(2)).To(Equal("2.00"))
		})
	})

	When("no merchant signature matches", func() {
		const text = "JOE'S HARDWARE\nHAMMER $12.99\nTotal: 12.99"

		var rec *receipt.Record

		JustBeforeEach(func() {
			rec = enhancer.Enhance(text, extractor.Extract(text, 0.9))
		})

		It("should keep the extractor's fields untouched", func() {
			Expect(rec.MerchantName).To(Equal("JOE'S HARDWARE"))
			Expect(rec.TotalAmount.StringFixed(2)).To(Equal("12.99"))
			item, ok := findItem(rec.Items, "HAMMER")
			Expect(ok).To(BeTrue())
			Expect(item.Category).To(BeEmpty())
		})
	})

	When("a merchant matches but its patterns find nothing", func() {
		const text = "Wal-Mart Store #1234\nTotal: 7.00"

		It("should never replace extracted fields with empty ones", func() {
			rec := enhancer.Enhance(text, extractor.Extract(text, 0.9))
			Expect(rec.TotalAmount.StringFixed(2)).To(Equal("7.00"))
		})
	})

	When("a line uses the qty @ unit = total shape", func() {
		It("should synthesize an item when the arithmetic holds", func() {
			rec := enhancer.Enhance("3 @ $2.00 = $6.00", &receipt.Record{})
			Expect(rec.Items).To(HaveLen(1))
			Expect(rec.Items[0].Description).To(Equal("Item (qty: 3)"))
			Expect(rec.Items[0].Quantity).To(Equal(3.0))
			Expect(rec.Items[0].TotalPrice.StringFixed(2)).To(Equal("6.00"))
		})

		It("should reject the line when the arithmetic is off", func() {
			rec := enhancer.Enhance("3 @ $2.00 = $9.99", &receipt.Record{})
			Expect(rec.Items).To(BeEmpty())
		})
	})

	When("loose candidates are receipt vocabulary", func() {
		It("should filter them out", func() {
			rec := enhancer.Enhance("THANK YOU 0.00\nCHANGE 5.00\nVISA 12.00", &receipt.Record{})
			Expect(rec.Items).To(BeEmpty())
		})
	})

	When("items repeat with different casing", func() {
		It("should keep the first occurrence only", func() {
			rec := &receipt.Record{Items: []receipt.LineItem{
				{Description: "Coffee"},
				{Description: "COFFEE"},
				{Description: "Bagel"},
			}}
			enhanced := enhancer.Enhance("", rec)
			Expect(enhanced.Items).To(HaveLen(2))
			Expect(enhanced.Items[0].Description).To(Equal("Coffee"))
			Expect(enhanced.Items[0].Category).To(Equal("beverages"))
		})
	})
})

var _ = Describe("enhancedConfidence", func() {
	It("should combine baseline, merchant, completeness and validation", func() {
		ten := decimal.RequireFromString("10.00")
		tax := decimal.RequireFromString("0.80")
		total := decimal.RequireFromString("10.80")
		rec := &receipt.Record{
			ConfidenceScore: 0.5,
			MerchantName:    "Walmart",
			Subtotal:        &ten,
			TaxAmount:       &tax,
			TotalAmount:     &total,
			Items:           []receipt.LineItem{{Description: "Milk", TotalPrice: &ten}},
		}
		rec.Date = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		Expect(enhancedConfidence(rec)).To(BeNumerically("~", 0.8, 1e-9))
	})

	It("should score a record higher when the merchant is known", func() {
		total := decimal.RequireFromString("5.00")
		anonymous := &receipt.Record{ConfidenceScore: 0.5, TotalAmount: &total}
		named := &receipt.Record{ConfidenceScore: 0.5, TotalAmount: &total, MerchantName: "Target"}
		Expect(enhancedConfidence(named)).To(BeNumerically(">", enhancedConfidence(anonymous)))
	})
})
