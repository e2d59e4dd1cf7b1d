// Package validate scores extracted receipt records and reports the
// problems that make a record unreliable.
package validate

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DingoOz/receipt-scanner/internal/receipt"
)

// Severity ranks an issue. A single critical issue makes the record
// invalid regardless of its confidence score.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityMinor    Severity = "minor"
)

// Issue is one problem found during validation.
type Issue struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is the outcome of validating one record. Scores holds the
// per-category sub-scores that the overall confidence is built from.
type Result struct {
	IsValid    bool               `json:"is_valid"`
	Confidence float64            `json:"confidence_score"`
	Scores     map[string]float64 `json:"validation_scores"`
	Issues     []Issue            `json:"issues"`
	Warnings   []Issue            `json:"warnings"`
}

// categoryWeights decide how much each sub-check contributes to the
// overall confidence. Amounts and arithmetic dominate.
var categoryWeights = map[string]float64{
	"amounts":      0.30,
	"calculations": 0.25,
	"merchant":     0.15,
	"items":        0.15,
	"date_time":    0.10,
	"data_quality": 0.05,
}

var (
	maxReasonableAmount = decimal.RequireFromString("10000.00")
	totalTolerance      = decimal.RequireFromString("0.02")
	subtotalTolerance   = decimal.RequireFromString("0.05")
	minTaxRate          = decimal.RequireFromString("0.01")
	maxTaxRate          = decimal.RequireFromString("0.20")
)

var invalidMerchantNames = []*regexp.Regexp{
	regexp.MustCompile(`^[0-9*\-+=]+$`),
	regexp.MustCompile(`^[a-z]{1,2}$`),
	regexp.MustCompile(`^(total|subtotal|tax|cash)$`),
	regexp.MustCompile(`^\*+$`),
}

var timeFormats = []*regexp.Regexp{
	regexp.MustCompile(`^\d{1,2}:\d{2}$`),
	regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2}$`),
	regexp.MustCompile(`^\d{1,2}:\d{2}\s*(am|pm)$`),
}

var phoneFormats = []*regexp.Regexp{
	regexp.MustCompile(`^\d{3}-\d{3}-\d{4}$`),
	regexp.MustCompile(`^\(\d{3}\)\s*\d{3}-\d{4}$`),
	regexp.MustCompile(`^\d{3}\.\d{3}\.\d{4}$`),
	regexp.MustCompile(`^\d{10}$`),
}

// Validator checks receipt records against a minimum confidence.
type Validator struct {
	minConfidence float64
	now           func() time.Time
}

// NewValidator creates a Validator. Records scoring below
// minConfidence, or carrying any critical issue, are reported invalid.
func NewValidator(minConfidence float64) *Validator {
	return &Validator{minConfidence: minConfidence, now: time.Now}
}

// Validate runs every sub-check and combines them into an overall
// confidence.
func (v *Validator) Validate(rec *receipt.Record) Result {
	result := Result{
		Scores:   make(map[string]float64, len(categoryWeights)),
		Issues:   []Issue{},
		Warnings: []Issue{},
	}

	result.Scores["merchant"] = v.checkMerchant(rec, &result)
	result.Scores["date_time"] = v.checkDateTime(rec, &result)
	result.Scores["amounts"] = v.checkAmounts(rec, &result)
	result.Scores["items"] = v.checkItems(rec, &result)
	result.Scores["calculations"] = v.checkCalculations(rec, &result)
	result.Scores["data_quality"] = v.checkDataQuality(rec)

	result.Confidence = overallConfidence(result.Scores)
	result.IsValid = result.Confidence >= v.minConfidence && countSeverity(result.Issues, SeverityCritical) == 0

	slog.Debug("validated receipt", "confidence", result.Confidence, "valid", result.IsValid, "issues", len(result.Issues))
	return result
}

func (v *Validator) checkMerchant(rec *receipt.Record, result *Result) float64 {
	score := 0.0

	switch {
	case rec.MerchantName == "":
		result.Issues = append(result.Issues, Issue{
			Type:     "missing_merchant_name",
			Severity: SeverityMinor,
			Message:  "Merchant name not found",
		})
	case len(strings.TrimSpace(rec.MerchantName)) < 3:
		result.Issues = append(result.Issues, Issue{
			Type:     "merchant_name_too_short",
			Severity: SeverityWarning,
			Message:  "Merchant name is too short",
		})
	default:
		score += 0.5
		if isReasonableMerchantName(rec.MerchantName) {
			score += 0.3
		}
	}

	if len(strings.TrimSpace(rec.MerchantAddress)) >= 10 {
		score += 0.1
	}
	if rec.MerchantPhone != "" && matchesAny(phoneFormats, rec.MerchantPhone) {
		score += 0.1
	}

	return clamp(score)
}

func (v *Validator) checkDateTime(rec *receipt.Record, result *Result) float64 {
	score := 0.0

	if rec.HasDate() {
		if v.isReasonableDate(rec.Date) {
			score += 0.7
		} else {
			result.Issues = append(result.Issues, Issue{
				Type:     "unreasonable_date",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Date seems unreasonable: %s", rec.Date.Format("2006-01-02")),
			})
			score += 0.3 // partial credit
		}
	} else {
		result.Issues = append(result.Issues, Issue{
			Type:     "missing_date",
			Severity: SeverityMinor,
			Message:  "Receipt date not found",
		})
	}

	if rec.Time != "" {
		if matchesAny(timeFormats, strings.ToLower(rec.Time)) {
			score += 0.3
		} else {
			result.Warnings = append(result.Warnings, Issue{
				Type:    "invalid_time_format",
				Message: fmt.Sprintf("Time format seems invalid: %s", rec.Time),
			})
		}
	}

	return clamp(score)
}

func (v *Validator) checkAmounts(rec *receipt.Record, result *Result) float64 {
	score := 0.0

	if rec.TotalAmount == nil {
		result.Issues = append(result.Issues, Issue{
			Type:     "missing_total",
			Severity: SeverityCritical,
			Message:  "Total amount not found",
		})
	} else if isReasonableAmount(*rec.TotalAmount) {
		score += 0.5
	} else {
		result.Issues = append(result.Issues, Issue{
			Type:     "unreasonable_total",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Total amount seems unreasonable: $%s", rec.TotalAmount),
		})
	}

	if rec.Subtotal != nil && isReasonableAmount(*rec.Subtotal) {
		score += 0.2
	}

	if rec.TaxAmount != nil && isReasonableAmount(*rec.TaxAmount) {
		score += 0.1
		if rec.Subtotal != nil && rec.Subtotal.IsPositive() {
			rate := rec.TaxAmount.Div(*rec.Subtotal)
			if rate.GreaterThanOrEqual(minTaxRate) && rate.LessThanOrEqual(maxTaxRate) {
				score += 0.1
			} else {
				result.Warnings = append(result.Warnings, Issue{
					Type:    "unusual_tax_rate",
					Message: fmt.Sprintf("Tax rate seems unusual: %s%%", rate.Mul(decimal.NewFromInt(100)).Round(1)),
				})
			}
		}
	}

	if rec.TipAmount != nil && isReasonableAmount(*rec.TipAmount) {
		score += 0.1
	}

	return clamp(score)
}

func (v *Validator) checkItems(rec *receipt.Record, result *Result) float64 {
	if len(rec.Items) == 0 {
		result.Issues = append(result.Issues, Issue{
			Type:     "no_items",
			Severity: SeverityMinor,
			Message:  "No line items found",
		})
		return 0.0
	}

	valid := 0
	for _, item := range rec.Items {
		itemScore := 0.0

		if len(strings.TrimSpace(item.Description)) >= 3 {
			itemScore += 0.5
		}
		if item.TotalPrice != nil && isReasonableAmount(*item.TotalPrice) {
			itemScore += 0.3
		}
		if item.Quantity > 0 && item.UnitPrice != nil && item.TotalPrice != nil {
			calculated := item.UnitPrice.Mul(decimal.NewFromFloat(item.Quantity))
			if calculated.Sub(*item.TotalPrice).Abs().LessThan(totalTolerance) {
				itemScore += 0.2
			} else {
				result.Warnings = append(result.Warnings, Issue{
					Type:    "item_calculation_mismatch",
					Message: fmt.Sprintf("Item calculation mismatch: %s", item.Description),
				})
			}
		}

		if itemScore >= 0.5 {
			valid++
		}
	}

	return float64(valid) / float64(len(rec.Items))
}

func (v *Validator) checkCalculations(rec *receipt.Record, result *Result) float64 {
	score := 0.5

	if rec.Subtotal != nil && rec.TaxAmount != nil && rec.TotalAmount != nil {
		calculated := rec.Subtotal.Add(*rec.TaxAmount)
		if rec.TipAmount != nil {
			calculated = calculated.Add(*rec.TipAmount)
		}
		if calculated.Sub(*rec.TotalAmount).Abs().LessThan(totalTolerance) {
			score += 0.3
		} else {
			result.Issues = append(result.Issues, Issue{
				Type:     "total_calculation_error",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Total calculation mismatch: %s vs %s", calculated, rec.TotalAmount),
			})
		}
	}

	if len(rec.Items) > 0 && rec.Subtotal != nil {
		itemsTotal := rec.ItemsTotal()
		// Item lines are the noisiest extraction, so allow a little
		// more slack than the total check.
		if itemsTotal.Sub(*rec.Subtotal).Abs().LessThan(subtotalTolerance) {
			score += 0.2
		} else {
			result.Warnings = append(result.Warnings, Issue{
				Type:    "items_subtotal_mismatch",
				Message: fmt.Sprintf("Items total (%s) != subtotal (%s)", itemsTotal, rec.Subtotal),
			})
		}
	}

	return clamp(score)
}

func (v *Validator) checkDataQuality(rec *receipt.Record) float64 {
	score := rec.ConfidenceScore * 0.4

	const totalFields = 7.0
	completeness := 0.0
	if rec.MerchantName != "" {
		completeness++
	}
	if rec.HasDate() {
		completeness++
	}
	if rec.TotalAmount != nil {
		completeness++
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

	score += textQuality(rec.RawText) * 0.3

	return clamp(score)
}

func (v *Validator) isReasonableDate(d time.Time) bool {
	today := v.now()
	if d.After(today) {
		return false
	}
	return today.Sub(d) <= 10*365*24*time.Hour
}

func isReasonableMerchantName(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range invalidMerchantNames {
		if p.MatchString(name) {
			return false
		}
	}
	return len(name) >= 3 && len(name) <= 50
}

// isReasonableAmount accepts positive amounts up to $10,000 with at
// most two decimal places.
func isReasonableAmount(d decimal.Decimal) bool {
	if !d.IsPositive() {
		return false
	}
	if d.GreaterThan(maxReasonableAmount) {
		return false
	}
	return d.Exponent() >= -2
}

// textQuality is a rough signal for how much usable OCR text survived:
// length plus the presence of letters, digits and punctuation.
func textQuality(text string) float64 {
	if text == "" {
		return 0.0
	}

	score := 0.0
	switch {
	case len(text) > 50:
		score += 0.3
	case len(text) > 20:
		score += 0.2
	}

	if strings.ContainsFunc(text, func(r rune) bool { return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' }) {
		score += 0.3
	}
	if strings.ContainsFunc(text, func(r rune) bool { return r >= '0' && r <= '9' }) {
		score += 0.2
	}
	if strings.ContainsAny(text, ".,;:!?$()[]{}") {
		score += 0.2
	}

	return clamp(score)
}

func overallConfidence(scores map[string]float64) float64 {
	weighted := 0.0
	totalWeight := 0.0
	for category, weight := range categoryWeights {
		if score, ok := scores[category]; ok {
			weighted += score * weight
			totalWeight += weight
		}
	}
	if totalWeight == 0 {
		return 0.0
	}
	return weighted / totalWeight
}

func countSeverity(issues []Issue, severity Severity) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity == severity {
			n++
		}
	}
	return n
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func clamp(f float64) float64 {
	if f > 1.0 {
		return 1.0
	}
	return f
}

// Summary renders the result for log output and CLI reports.
func (r Result) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Overall Confidence: %.1f%%\n", r.Confidence*100)
	status := "Invalid"
	if r.IsValid {
		status = "Valid"
	}
	fmt.Fprintf(&b, "Status: %s\n", status)

	if n := countSeverity(r.Issues, SeverityCritical); n > 0 {
		fmt.Fprintf(&b, "Critical Issues: %d\n", n)
	}
	if n := countSeverity(r.Issues, SeverityWarning); n > 0 {
		fmt.Fprintf(&b, "Warnings: %d\n", n)
	}
	if n := countSeverity(r.Issues, SeverityMinor); n > 0 {
		fmt.Fprintf(&b, "Minor Issues: %d\n", n)
	}

	if len(r.Scores) > 0 {
		b.WriteString("Score Breakdown:\n")
		for _, category := range []string{"amounts", "calculations", "merchant", "items", "date_time", "data_quality"} {
			if score, ok := r.Scores[category]; ok {
				fmt.Fprintf(&b, "  %s: %.1f%%\n", category, score*100)
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
