package validate

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/DingoOz/receipt-scanner/internal/receipt"
)

func TestValidate(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Validate Suite")
}

var _ = Describe("Validator", func() {
	var (
		validator *Validator
		rec       *receipt.Record
		result    Result
	)

	today := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		validator = NewValidator(0.6)
		validator.now = func() time.Time { return today }

		rec = &receipt.Record{
			MerchantName:    "Walmart Supercenter",
			MerchantAddress: "123 Main St Springfield, IL 62704",
			MerchantPhone:   "(555) 123-4567",
			Date:            today.AddDate(0, 0, -30),
			Time:            "10:23 AM",
			Subtotal:        receipt.Amount("10.00"),
			TaxAmount:       receipt.Amount("0.80"),
			TotalAmount:     receipt.Amount("10.80"),
			Items: []receipt.LineItem{
				{Description: "Milk", TotalPrice: receipt.Amount("5.00")},
				{Description: "Bread", TotalPrice: receipt.Amount("5.00")},
			},
			PaymentMethod:   "visa",
			ConfidenceScore: 0.9,
			RawText:         "WALMART SUPERCENTER receipt text with numbers 10.80 and punctuation.",
		}
	})

	JustBeforeEach(func() {
		result = validator.Validate(rec)
	})

	When("the record is complete and consistent", func() {
		It("should be valid", func() {
			Expect(result.IsValid).To(BeTrue())
			Expect(result.Issues).To(BeEmpty())
		})

		It("should score every category", func() {
			Expect(result.Scores["merchant"]).To(BeNumerically("~", 1.0, 1e-9))
			Expect(result.Scores["date_time"]).To(BeNumerically("~", 1.0, 1e-9))
			Expect(result.Scores["amounts"]).To(BeNumerically("~", 0.9, 1e-9))
			Expect(result.Scores["items"]).To(BeNumerically("~", 1.0, 1e-9))
			Expect(result.Scores["calculations"]).To(BeNumerically("~", 1.0, 1e-9))
		})

		It("should weight the categories into the overall confidence", func() {
			Expect(result.Confidence).To(BeNumerically(">", 0.9))
			Expect(result.Confidence).To(BeNumerically("<=", 1.0))
		})
	})

	When("the total amount is missing", func() {
		BeforeEach(func() {
			rec.TotalAmount = nil
		})

		It("should report exactly one critical issue", func() {
			Expect(countSeverity(result.Issues, SeverityCritical)).To(Equal(1))
			Expect(result.Issues).To(ContainElement(HaveField("Type", "missing_total")))
		})

		It("should be invalid regardless of the other scores", func() {
			Expect(result.IsValid).To(BeFalse())
		})
	})

	When("the total fails the arithmetic check", func() {
		BeforeEach(func() {
			rec.TotalAmount = receipt.Amount("99.99")
		})

		It("should flag the calculation as a warning, not critical", func() {
			Expect(result.Issues).To(ContainElement(HaveField("Type", "total_calculation_error")))
			Expect(countSeverity(result.Issues, SeverityCritical)).To(BeZero())
		})
	})

	When("a tip is part of the total", func() {
		BeforeEach(func() {
			rec.TipAmount = receipt.Amount("2.00")
			rec.TotalAmount = receipt.Amount("12.80")
		})

		It("should include the tip in the arithmetic check", func() {
			Expect(result.Scores["calculations"]).To(BeNumerically("~", 1.0, 1e-9))
		})
	})

	When("the total is negative", func() {
		BeforeEach(func() {
			rec.TotalAmount = receipt.Amount("-5.00")
		})

		It("should flag it as unreasonable", func() {
			Expect(result.Issues).To(ContainElement(HaveField("Type", "unreasonable_total")))
		})
	})

	When("the total is implausibly large", func() {
		BeforeEach(func() {
			rec.TotalAmount = receipt.Amount("20000.00")
		})

		It("should flag it as unreasonable", func() {
			Expect(result.Issues).To(ContainElement(HaveField("Type", "unreasonable_total")))
		})
	})

	When("the tax rate is outside the plausible band", func() {
		BeforeEach(func() {
			rec.TaxAmount = receipt.Amount("5.00")
			rec.TotalAmount = receipt.Amount("15.00")
		})

		It("should warn without failing validation", func() {
			Expect(result.Warnings).To(ContainElement(HaveField("Type", "unusual_tax_rate")))
			Expect(result.Scores["amounts"]).To(BeNumerically("~", 0.8, 1e-9))
		})
	})

	When("the date is in the future", func() {
		BeforeEach(func() {
			rec.Date = today.AddDate(0, 0, 7)
		})

		It("should give partial credit with a warning", func() {
			Expect(result.Issues).To(ContainElement(HaveField("Type", "unreasonable_date")))
			Expect(result.Scores["date_time"]).To(BeNumerically("~", 0.6, 1e-9))
		})
	})

	When("the date is more than ten years old", func() {
		BeforeEach(func() {
			rec.Date = today.AddDate(-11, 0, 0)
		})

		It("should flag it as unreasonable", func() {
			Expect(result.Issues).To(ContainElement(HaveField("Type", "unreasonable_date")))
		})
	})

	When("an item's quantity and unit price disagree with its total", func() {
		BeforeEach(func() {
			rec.Items = []receipt.LineItem{
				{Description: "Milk", Quantity: 2, UnitPrice: receipt.Amount("2.00"), TotalPrice: receipt.Amount("9.99")},
			}
		})

		It("should warn about the mismatch", func() {
			Expect(result.Warnings).To(ContainElement(HaveField("Type", "item_calculation_mismatch")))
		})
	})

	When("there are no items", func() {
		BeforeEach(func() {
			rec.Items = nil
		})

		It("should report a minor issue and a zero item score", func() {
			Expect(result.Issues).To(ContainElement(HaveField("Type", "no_items")))
			Expect(result.Scores["items"]).To(BeZero())
		})
	})

	When("the record is nearly empty", func() {
		BeforeEach(func() {
			rec = &receipt.Record{RawText: "x"}
		})

		It("should be invalid", func() {
			Expect(result.IsValid).To(BeFalse())
			Expect(result.Confidence).To(BeNumerically("<", 0.6))
		})
	})

	Describe("Summary", func() {
		It("should render status and score breakdown", func() {
			summary := result.Summary()
			Expect(summary).To(ContainSubstring("Overall Confidence:"))
			Expect(summary).To(ContainSubstring("Status: Valid"))
			Expect(summary).To(ContainSubstring("amounts:"))
		})
	})
})

var _ = Describe("isReasonableAmount", func() {
	It("should reject amounts with more than two decimal places", func() {
		Expect(isReasonableAmount(*receipt.Amount("10.123"))).To(BeFalse())
	})

	It("should accept ordinary receipt totals", func() {
		Expect(isReasonableAmount(*receipt.Amount("10.80"))).To(BeTrue())
		Expect(isReasonableAmount(*receipt.Amount("10000.00"))).To(BeTrue())
	})

	It("should reject zero", func() {
		Expect(isReasonableAmount(*receipt.Amount("0.00"))).To(BeFalse())
	})
})
