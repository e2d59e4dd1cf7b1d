package receipt

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is a single purchased item parsed from a receipt.
type LineItem struct {
	Description string           `json:"description"`
	Quantity    float64          `json:"quantity,omitempty"` // 0 means not captured
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	TotalPrice  *decimal.Decimal `json:"total_price,omitempty"`
	Category    string           `json:"category,omitempty"`
	Confidence  float64          `json:"confidence"`
}

// Record is the structured data extracted from one receipt image.
// Amount fields are fixed-point decimals; a nil amount means the field
// was not found in the text, which is meaningful input to scoring.
//
// The JSON field names are a stable contract consumed by downstream
// exporters. Renaming any of them is a breaking change.
type Record struct {
	MerchantName    string `json:"merchant_name,omitempty"`
	MerchantAddress string `json:"merchant_address,omitempty"`
	MerchantPhone   string `json:"merchant_phone,omitempty"`

	Date time.Time `json:"date,omitempty"`
	Time string    `json:"time,omitempty"`

	Items []LineItem `json:"items"`

	Subtotal    *decimal.Decimal `json:"subtotal,omitempty"`
	TaxAmount   *decimal.Decimal `json:"tax_amount,omitempty"`
	TipAmount   *decimal.Decimal `json:"tip_amount,omitempty"`
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`

	PaymentMethod string `json:"payment_method,omitempty"`
	CardLastFour  string `json:"card_last_four,omitempty"`

	ReceiptNumber string `json:"receipt_number,omitempty"`

	ConfidenceScore float64 `json:"confidence_score"`
	RawText         string  `json:"raw_text,omitempty"`
}

// MarshalJSON omits the date field when no date was extracted.
// omitempty alone does not treat the zero time.Time as empty, and the
// exporter contract expects unset fields to be absent.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	out := struct {
		plain
		Date *time.Time `json:"date,omitempty"`
	}{plain: plain(r)}
	if !r.Date.IsZero() {
		out.Date = &r.Date
	}
	return json.Marshal(out)
}

// HasDate reports whether a transaction date was extracted.
func (r *Record) HasDate() bool {
	return !r.Date.IsZero()
}

// ItemsTotal sums the total prices of all items that have one.
func (r *Record) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range r.Items {
		if item.TotalPrice != nil {
			sum = sum.Add(*item.TotalPrice)
		}
	}
	return sum
}

// Amount parses a string such as "10.80" into a fixed-point decimal
// suitable for the Record amount fields. Returns nil if the string does
// not parse.
func Amount(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
