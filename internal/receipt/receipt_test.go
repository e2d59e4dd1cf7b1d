package receipt

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func TestReceipt(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Receipt Suite")
}

var _ = Describe("Amount", func() {
	It("should parse a currency string", func() {
		d := Amount("10.80")
		Expect(d).NotTo(BeNil())
		Expect(d.StringFixed(2)).To(Equal("10.80"))
	})

	It("should return nil for unparseable input", func() {
		Expect(Amount("$10.80")).To(BeNil())
		Expect(Amount("")).To(BeNil())
		Expect(Amount("ten")).To(BeNil())
	})
})

var _ = Describe("Record", func() {
	Describe("ItemsTotal", func() {
		It("should sum only items with a total price", func() {
			rec := Record{Items: []LineItem{
				{Description: "Latte", TotalPrice: Amount("5.00")},
				{Description: "Muffin", TotalPrice: Amount("5.80")},
				{Description: "Unpriced"},
			}}
			Expect(rec.ItemsTotal().StringFixed(2)).To(Equal("10.80"))
		})

		It("should return zero without items", func() {
			var rec Record
			Expect(rec.ItemsTotal().Equal(decimal.Zero)).To(BeTrue())
		})
	})

	Describe("HasDate", func() {
		It("should distinguish set from unset dates", func() {
			var rec Record
			Expect(rec.HasDate()).To(BeFalse())
			rec.Date = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
			Expect(rec.HasDate()).To(BeTrue())
		})
	})

	Describe("JSON encoding", func() {
		It("should keep the exporter-facing field names", func() {
			rec := Record{
				MerchantName: "COFFEE HOUSE",
				Date:         time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				Items: []LineItem{
					{Description: "Latte", Quantity: 2, UnitPrice: Amount("2.50"), TotalPrice: Amount("5.00")},
				},
				Subtotal:        Amount("5.00"),
				TaxAmount:       Amount("0.40"),
				TotalAmount:     Amount("5.40"),
				PaymentMethod:   "visa",
				CardLastFour:    "1234",
				ReceiptNumber:   "A12345",
				ConfidenceScore: 0.9,
			}

			data, err := json.Marshal(rec)
			Expect(err).NotTo(HaveOccurred())

			var fields map[string]any
			Expect(json.Unmarshal(data, &fields)).To(Succeed())
			for _, name := range []string{
				"merchant_name", "date", "items",
				"subtotal", "tax_amount", "total_amount",
				"payment_method", "card_last_four",
				"receipt_number", "confidence_score",
			} {
				Expect(fields).To(HaveKey(name))
			}

			items := fields["items"].([]any)
			item := items[0].(map[string]any)
			Expect(item).To(HaveKey("description"))
			Expect(item).To(HaveKey("unit_price"))
			Expect(item).To(HaveKey("total_price"))
		})

		It("should omit unset amounts", func() {
			data, err := json.Marshal(Record{})
			Expect(err).NotTo(HaveOccurred())

			var fields map[string]any
			Expect(json.Unmarshal(data, &fields)).To(Succeed())
			Expect(fields).NotTo(HaveKey("total_amount"))
			Expect(fields).NotTo(HaveKey("subtotal"))
			Expect(fields).NotTo(HaveKey("merchant_name"))
		})

		It("should omit an unset date", func() {
			data, err := json.Marshal(Record{MerchantName: "COFFEE HOUSE"})
			Expect(err).NotTo(HaveOccurred())

			var fields map[string]any
			Expect(json.Unmarshal(data, &fields)).To(Succeed())
			Expect(fields).NotTo(HaveKey("date"))
		})
	})
})
