// Package extract turns raw OCR text into structured receipt records
// using ordered regex pattern families, with an optional merchant-aware
// enhancement pass.
package extract

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DingoOz/receipt-scanner/internal/receipt"
)

// Extractor populates a receipt record from OCR text. A pattern family
// that finds nothing leaves its field unset; absence feeds into the
// confidence score instead of raising an error.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract parses the text into a record and computes the baseline
// confidence score.
func (e *Extractor) Extract(text string, ocrConfidence float64) *receipt.Record {
	rec := &receipt.Record{RawText: text, Items: []receipt.LineItem{}}

	cleaned := cleanText(text)
	lines := strings.Split(cleaned, "\n")

	rec.MerchantName = extractMerchantName(firstN(lines, 5))
	rec.MerchantAddress = extractMerchantAddress(firstN(lines, 10))
	rec.MerchantPhone = firstMatch(cleaned, phonePatterns, 0)

	rec.Date = extractDate(cleaned)
	rec.Time = firstMatch(cleaned, timePatterns, 1)

	rec.TotalAmount = extractAmount(cleaned, totalPatterns)
	rec.Subtotal = extractAmount(cleaned, subtotalPatterns)
	rec.TaxAmount = extractAmount(cleaned, taxPatterns)
	rec.TipAmount = extractAmount(cleaned, tipPatterns)

	rec.PaymentMethod, rec.CardLastFour = extractPayment(cleaned)
	rec.ReceiptNumber = firstMatch(cleaned, receiptNumberPatterns, 1)

	rec.Items = extractItems(lines)

	rec.ConfidenceScore = baselineConfidence(rec, ocrConfidence)
	slog.Debug("extracted receipt data", "confidence", rec.ConfidenceScore, "items", len(rec.Items))
	return rec
}

// cleanText strips non-printable characters and collapses runs of
// spaces within each line, keeping line structure intact.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "＄", "$")
	text = nonPrintable.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(intraLineSpace.ReplaceAllString(line, " "))
	}
	return strings.Join(lines, "\n")
}

func firstN(lines []string, n int) []string {
	if len(lines) < n {
		return lines
	}
	return lines[:n]
}

// firstMatch walks a pattern family and returns the given capture group
// of the first match, or "" if nothing matched. Group 0 is the whole
// match.
func firstMatch(text string, patterns []*regexp.Regexp, group int) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil && group < len(m) {
			return strings.TrimSpace(m[group])
		}
	}
	return ""
}

// extractMerchantName picks the first plausible header line: long
// enough, not an address, not a phone number, and not an all-caps short
// header token.
func extractMerchantName(topLines []string) string {
	for _, line := range topLines {
		line = strings.TrimSpace(line)
		if len(line) <= 3 || isAddressLine(line) || isPhoneLine(line) {
			continue
		}
		if len(line) > 8 || line != strings.ToUpper(line) {
			return line
		}
	}
	return ""
}

func extractMerchantAddress(topLines []string) string {
	var parts []string
	for _, line := range topLines {
		line = strings.TrimSpace(line)
		if line != "" && isAddressLine(line) {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func isAddressLine(line string) bool {
	for _, p := range addressIndicators {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

func isPhoneLine(line string) bool {
	for _, p := range phonePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

func extractDate(text string) time.Time {
	for _, p := range datePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, m[1]); err == nil {
				return d
			}
		}
	}
	return time.Time{}
}

// extractAmount returns the first parseable fixed-point amount found by
// the family, or nil.
func extractAmount(text string, patterns []*regexp.Regexp) *decimal.Decimal {
	for _, p := range patterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(m[1], ",", "")
		if d, err := decimal.NewFromString(raw); err == nil {
			return &d
		}
	}
	return nil
}

func extractPayment(text string) (method, lastFour string) {
	m := paymentPattern.FindStringSubmatch(text)
	if m == nil {
		return "", ""
	}
	return strings.ToLower(strings.TrimSpace(m[1])), m[2]
}

// extractItems tries the structural item patterns against each line,
// first match wins per line.
func extractItems(lines []string) []receipt.LineItem {
	items := []receipt.LineItem{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < 5 {
			continue
		}
		for _, p := range itemPatterns {
			m := p.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if item, ok := parseItemMatch(m[1:]); ok {
				items = append(items, item)
			}
			break
		}
	}
	return items
}

// parseItemMatch interprets the capture groups of an item pattern.
// Two groups is description+price; four is a quantity shape where the
// leading group being numeric decides the column order.
func parseItemMatch(groups []string) (receipt.LineItem, bool) {
	switch len(groups) {
	case 2:
		price, err := decimal.NewFromString(groups[1])
		if err != nil {
			return receipt.LineItem{}, false
		}
		return receipt.LineItem{
			Description: strings.TrimSpace(groups[0]),
			TotalPrice:  &price,
			Confidence:  0.8,
		}, true

	case 4:
		var description string
		var qtyStr string
		if isDigits(groups[0]) {
			qtyStr, description = groups[0], groups[1]
		} else {
			description, qtyStr = groups[0], groups[1]
		}
		quantity, err := strconv.ParseFloat(qtyStr, 64)
		if err != nil {
			return receipt.LineItem{}, false
		}
		unitPrice, err := decimal.NewFromString(groups[2])
		if err != nil {
			return receipt.LineItem{}, false
		}
		totalPrice, err := decimal.NewFromString(groups[3])
		if err != nil {
			return receipt.LineItem{}, false
		}
		return receipt.LineItem{
			Description: strings.TrimSpace(description),
			Quantity:    quantity,
			UnitPrice:   &unitPrice,
			TotalPrice:  &totalPrice,
			Confidence:  0.9,
		}, true
	}
	return receipt.LineItem{}, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// baselineConfidence combines OCR confidence (40%), field completeness
// (30%), arithmetic consistency (20%) and pattern-match richness (10%).
func baselineConfidence(rec *receipt.Record, ocrConfidence float64) float64 {
	score := ocrConfidence * 0.4

	const totalFields = 8.0
	completeness := 0.0
	if rec.MerchantName != "" {
		completeness++
	}
	if rec.HasDate() {
		completeness++
	}
	if rec.TotalAmount != nil {
		completeness += 2 // the total carries the most weight
	}
	if rec.Subtotal != nil {
		completeness++
	}
	if rec.TaxAmount != nil {
		completeness++
	}
	if len(rec.Items) > 0 {
		completeness++
	}
	if rec.PaymentMethod != "" {
		completeness++
	}
	score += (completeness / totalFields) * 0.3

	score += consistencyScore(rec) * 0.2

	pattern := 0.5
	if len(rec.MerchantName) > 3 {
		pattern += 0.2
	}
	if rec.HasDate() {
		pattern += 0.2
	}
	if rec.TotalAmount != nil {
		pattern += 0.1
	}
	if pattern > 1.0 {
		pattern = 1.0
	}
	score += pattern * 0.1

	return score
}

var centTolerance = decimal.NewFromFloat(0.02)

// consistencyScore checks subtotal+tax against total and the item sum
// against subtotal.
func consistencyScore(rec *receipt.Record) float64 {
	score := 0.5

	if rec.TotalAmount != nil && rec.Subtotal != nil && rec.TaxAmount != nil {
		calculated := rec.Subtotal.Add(*rec.TaxAmount)
		if calculated.Sub(*rec.TotalAmount).Abs().LessThan(centTolerance) {
			score += 0.3
		}
	}

	if len(rec.Items) > 0 && rec.Subtotal != nil {
		if rec.ItemsTotal().Sub(*rec.Subtotal).Abs().LessThan(centTolerance) {
			score += 0.2
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
