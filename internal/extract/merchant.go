package extract

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/DingoOz/receipt-scanner/internal/receipt"
)

// itemShape tells the enhancer how to read the capture groups of a
// merchant item pattern.
type itemShape int

const (
	shapeDescPrice         itemShape = iota // description, price
	shapeDescCodeTagPrice                   // description, item code, tax tag, price
	shapeDescPriceTag                       // description, price, tax tag
	shapeDescCodePriceTag                   // description, item code, price, tax tag
	shapeQtyDescPrice                       // quantity, description, price
)

type merchantItemPattern struct {
	re    *regexp.Regexp
	shape itemShape
}

// merchantTemplate holds one retailer's dedicated pattern set.
type merchantTemplate struct {
	namePatterns []*regexp.Regexp
	itemPatterns []merchantItemPattern
	totalPattern *regexp.Regexp
	taxPattern   *regexp.Regexp
	tipPattern   *regexp.Regexp
}

// merchantTemplates is a registry keyed by merchant tag. Adding a
// retailer means adding an entry here, nothing else.
var merchantTemplates = map[string]merchantTemplate{
	"walmart": {
		namePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)walmart.*supercenter`),
			regexp.MustCompile(`(?i)walmart.*store`),
			regexp.MustCompile(`(?i)wal-mart`),
		},
		itemPatterns: []merchantItemPattern{
			{regexp.MustCompile(`(?m)^([A-Z0-9 ]+?)\s+(\d{12})\s*([TNX])\s*(\d+\.\d{2})$`), shapeDescCodeTagPrice},
			{regexp.MustCompile(`(?m)^([A-Z0-9 ]+?)\s+(\d+\.\d{2})\s*([TNX])$`), shapeDescPriceTag},
		},
		totalPattern: regexp.MustCompile(`(?i)\btotal\s*(\d+\.\d{2})`),
		taxPattern:   regexp.MustCompile(`(?i)\btax\s*(\d+\.\d{2})`),
	},
	"target": {
		namePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\btarget\b`),
		},
		itemPatterns: []merchantItemPattern{
			{regexp.MustCompile(`(?m)^(.+?)\s+(\d{3}-\d{2}-\d{4})\s*(\d+\.\d{2})\s*([TNX])$`), shapeDescCodePriceTag},
		},
		totalPattern: regexp.MustCompile(`(?i)\btotal\s*(\d+\.\d{2})`),
	},
	"costco": {
		namePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)costco.*wholesale`),
		},
		itemPatterns: []merchantItemPattern{
			{regexp.MustCompile(`(?m)^(\d+)\s+(.+?)\s+(\d+\.\d{2})$`), shapeQtyDescPrice},
		},
		totalPattern: regexp.MustCompile(`(?i)\btotal\s*(\d+\.\d{2})`),
	},
	"grocery": {
		namePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)kroger`),
			regexp.MustCompile(`(?i)safeway`),
			regexp.MustCompile(`(?i)publix`),
			regexp.MustCompile(`(?i)whole foods`),
			regexp.MustCompile(`(?i)trader.*joe`),
		},
		itemPatterns: []merchantItemPattern{
			{regexp.MustCompile(`(?m)^(.+?)\s+(\d+\.\d{2})\s*([FT])$`), shapeDescPriceTag},
			{regexp.MustCompile(`(?m)^(.+?)\s+(\d+\.\d{2})$`), shapeDescPrice},
		},
		totalPattern: regexp.MustCompile(`(?i)\btotal\s*(\d+\.\d{2})`),
	},
	"restaurant": {
		namePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)mcdonald`),
			regexp.MustCompile(`(?i)burger.*king`),
			regexp.MustCompile(`(?i)subway`),
			regexp.MustCompile(`(?i)starbucks`),
			regexp.MustCompile(`(?i)pizza`),
		},
		itemPatterns: []merchantItemPattern{
			{regexp.MustCompile(`(?m)^(\d+)\s*x\s*(.+?)\s+(\d+\.\d{2})$`), shapeQtyDescPrice},
			{regexp.MustCompile(`(?m)^(.+?)\s+(\d+\.\d{2})$`), shapeDescPrice},
		},
		totalPattern: regexp.MustCompile(`(?i)\btotal\s*(\d+\.\d{2})`),
		tipPattern:   regexp.MustCompile(`(?i)\btip\s*(\d+\.\d{2})`),
	},
}

// loosePatterns are the generic second-pass item shapes tried on lines
// the structural extraction missed.
var loosePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^([A-Z][A-Z &]+?)\s+\$(\d+\.\d{2})$`),
	regexp.MustCompile(`^([A-Za-z][A-Za-z &'.-]+?)\s+\$?(\d+\.\d{2})$`),
	regexp.MustCompile(`^(\d+)\s*@\s*\$?(\d+\.\d{2})\s*=\s*\$?(\d+\.\d{2})$`),
}

// invalidDescriptions filter receipt vocabulary and OCR junk out of
// loose item candidates.
var invalidDescriptions = []*regexp.Regexp{
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`^[a-z]{1,2}$`),
	regexp.MustCompile(`total`),
	regexp.MustCompile(`subtotal`),
	regexp.MustCompile(`tax`),
	regexp.MustCompile(`cash`),
	regexp.MustCompile(`change`),
	regexp.MustCompile(`visa`),
	regexp.MustCompile(`mastercard`),
	regexp.MustCompile(`thank you`),
	regexp.MustCompile(`receipt`),
	regexp.MustCompile(`store.*\d+`),
	regexp.MustCompile(`^\*+$`),
	regexp.MustCompile(`^-+$`),
}

var hasLetter = regexp.MustCompile(`[a-zA-Z]`)

// itemCategories maps a category tag to the keywords that place an
// item in it.
var itemCategories = map[string][]string{
	"food": {
		"milk", "bread", "eggs", "cheese", "butter", "yogurt", "meat", "chicken", "beef",
		"fish", "salmon", "fruit", "apple", "banana", "orange", "vegetable", "tomato",
		"potato", "onion", "lettuce", "cereal", "pasta", "rice", "beans", "soup",
	},
	"beverages": {"water", "soda", "juice", "coffee", "tea", "beer", "wine", "energy drink"},
	"household": {
		"detergent", "shampoo", "soap", "toothpaste", "toilet paper", "paper towel",
		"cleaner", "dish soap", "trash bag",
	},
	"pharmacy":    {"medicine", "vitamin", "aspirin", "bandaid", "thermometer", "prescription"},
	"clothing":    {"shirt", "pants", "shoes", "dress", "jacket", "socks", "underwear"},
	"electronics": {"phone", "charger", "battery", "cable", "headphone", "speaker"},
}

// Enhancer re-parses receipt text with merchant-specific pattern sets
// when a known merchant signature is present, then sweeps remaining
// lines with loose item patterns.
type Enhancer struct{}

// NewEnhancer creates an Enhancer.
func NewEnhancer() *Enhancer { return &Enhancer{} }

// Enhance mutates the record in place and returns it. Merchant-specific
// results only ever replace extractor output when they are non-empty.
func (e *Enhancer) Enhance(text string, rec *receipt.Record) *receipt.Record {
	if tag := identifyMerchant(text); tag != "" {
		slog.Debug("identified merchant signature", "merchant", tag)
		applyTemplate(text, rec, merchantTemplates[tag])
	}

	rec.Items = sweepLooseItems(text, rec.Items)
	rec.Items = dedupeItems(rec.Items)
	categorizeItems(rec.Items)

	rec.ConfidenceScore = enhancedConfidence(rec)
	return rec
}

func identifyMerchant(text string) string {
	// Deterministic iteration so the same text always resolves to the
	// same template when patterns overlap.
	for _, tag := range []string{"walmart", "target", "costco", "grocery", "restaurant"} {
		for _, p := range merchantTemplates[tag].namePatterns {
			if p.MatchString(text) {
				return tag
			}
		}
	}
	return ""
}

func applyTemplate(text string, rec *receipt.Record, tmpl merchantTemplate) {
	var items []receipt.LineItem
	for _, ip := range tmpl.itemPatterns {
		for _, m := range ip.re.FindAllStringSubmatch(text, -1) {
			if item, ok := parseMerchantItem(m[1:], ip.shape); ok {
				items = append(items, item)
			}
		}
	}
	if len(items) > 0 {
		rec.Items = items
	}

	if tmpl.totalPattern != nil {
		if d := matchAmount(tmpl.totalPattern, text); d != nil {
			rec.TotalAmount = d
		}
	}
	if tmpl.taxPattern != nil {
		if d := matchAmount(tmpl.taxPattern, text); d != nil {
			rec.TaxAmount = d
		}
	}
	if tmpl.tipPattern != nil {
		if d := matchAmount(tmpl.tipPattern, text); d != nil {
			rec.TipAmount = d
		}
	}
}

func matchAmount(p *regexp.Regexp, text string) *decimal.Decimal {
	m := p.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return nil
	}
	return &d
}

func parseMerchantItem(groups []string, shape itemShape) (receipt.LineItem, bool) {
	switch shape {
	case shapeDescPrice:
		price, err := decimal.NewFromString(groups[1])
		if err != nil {
			return receipt.LineItem{}, false
		}
		return receipt.LineItem{Description: strings.TrimSpace(groups[0]), TotalPrice: &price, Confidence: 0.8}, true

	case shapeDescCodeTagPrice:
		price, err := decimal.NewFromString(groups[3])
		if err != nil {
			return receipt.LineItem{}, false
		}
		return receipt.LineItem{Description: strings.TrimSpace(groups[0]), TotalPrice: &price, Confidence: 0.9}, true

	case shapeDescPriceTag:
		price, err := decimal.NewFromString(groups[1])
		if err != nil {
			return receipt.LineItem{}, false
		}
		return receipt.LineItem{Description: strings.TrimSpace(groups[0]), TotalPrice: &price, Confidence: 0.9}, true

	case shapeDescCodePriceTag:
		price, err := decimal.NewFromString(groups[2])
		if err != nil {
			return receipt.LineItem{}, false
		}
		return receipt.LineItem{Description: strings.TrimSpace(groups[0]), TotalPrice: &price, Confidence: 0.9}, true

	case shapeQtyDescPrice:
		quantity, err := strconv.ParseFloat(groups[0], 64)
		if err != nil || quantity <= 0 {
			return receipt.LineItem{}, false
		}
		totalPrice, err := decimal.NewFromString(groups[2])
		if err != nil {
			return receipt.LineItem{}, false
		}
		unitPrice := totalPrice.Div(decimal.NewFromFloat(quantity)).Round(2)
		return receipt.LineItem{
			Description: strings.TrimSpace(groups[1]),
			Quantity:    quantity,
			UnitPrice:   &unitPrice,
			TotalPrice:  &totalPrice,
			Confidence:  0.9,
		}, true
	}
	return receipt.LineItem{}, false
}

// sweepLooseItems scans lines not already represented by a captured
// item description and tries the loose patterns on them.
func sweepLooseItems(text string, existing []receipt.LineItem) []receipt.LineItem {
	items := existing
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 5 {
			continue
		}
		if lineCovered(line, items) {
			continue
		}
		if item, ok := tryLoosePatterns(line); ok {
			items = append(items, item)
		}
	}
	return items
}

func lineCovered(line string, items []receipt.LineItem) bool {
	lower := strings.ToLower(line)
	for _, item := range items {
		if item.Description != "" && strings.Contains(lower, strings.ToLower(item.Description)) {
			return true
		}
	}
	return false
}

func tryLoosePatterns(line string) (receipt.LineItem, bool) {
	for _, p := range loosePatterns {
		m := p.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		groups := m[1:]
		switch len(groups) {
		case 2:
			description := strings.TrimSpace(groups[0])
			if len(description) <= 2 || !isValidItemDescription(description) {
				continue
			}
			price, err := decimal.NewFromString(groups[1])
			if err != nil {
				continue
			}
			return receipt.LineItem{Description: description, TotalPrice: &price, Confidence: 0.7}, true

		case 3:
			quantity, err := strconv.ParseFloat(groups[0], 64)
			if err != nil {
				continue
			}
			unitPrice, err := decimal.NewFromString(groups[1])
			if err != nil {
				continue
			}
			totalPrice, err := decimal.NewFromString(groups[2])
			if err != nil {
				continue
			}
			if unitPrice.Mul(decimal.NewFromFloat(quantity)).Sub(totalPrice).Abs().GreaterThanOrEqual(centTolerance) {
				continue
			}
			return receipt.LineItem{
				Description: "Item (qty: " + groups[0] + ")",
				Quantity:    quantity,
				UnitPrice:   &unitPrice,
				TotalPrice:  &totalPrice,
				Confidence:  0.8,
			}, true
		}
	}
	return receipt.LineItem{}, false
}

func isValidItemDescription(description string) bool {
	if len(description) < 3 || len(description) > 50 {
		return false
	}
	lower := strings.ToLower(description)
	for _, p := range invalidDescriptions {
		if p.MatchString(lower) {
			return false
		}
	}
	return hasLetter.MatchString(description)
}

// dedupeItems keeps the first occurrence of each case-insensitive
// description.
func dedupeItems(items []receipt.LineItem) []receipt.LineItem {
	seen := make(map[string]struct{}, len(items))
	unique := items[:0:0]
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item.Description))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, item)
	}
	return unique
}

func categorizeItems(items []receipt.LineItem) {
	for i := range items {
		items[i].Category = itemCategory(items[i].Description)
	}
}

func itemCategory(description string) string {
	lower := strings.ToLower(description)
	for _, tag := range []string{"food", "beverages", "household", "pharmacy", "clothing", "electronics"} {
		for _, keyword := range itemCategories[tag] {
			if strings.Contains(lower, keyword) {
				return tag
			}
		}
	}
	return ""
}

// enhancedConfidence reweights the baseline score: extractor output
// 40%, merchant identification 20%, completeness 30%, arithmetic
// consistency 10%, capped at 1.0.
func enhancedConfidence(rec *receipt.Record) float64 {
	score := rec.ConfidenceScore * 0.4

	if rec.MerchantName != "" {
		score += 0.2
	}

	completeness := 0.0
	if rec.HasDate() {
		completeness += 0.2
	}
	if rec.TotalAmount != nil {
		completeness += 0.3
	}
	if len(rec.Items) > 0 {
		completeness += 0.3
	}
	if rec.TaxAmount != nil {
		completeness += 0.1
	}
	if rec.MerchantName != "" {
		completeness += 0.1
	}
	score += completeness * 0.3

	validation := 0.5
	if rec.Subtotal != nil && rec.TaxAmount != nil && rec.TotalAmount != nil {
		if rec.Subtotal.Add(*rec.TaxAmount).Sub(*rec.TotalAmount).Abs().LessThan(centTolerance) {
			validation += 0.3
		}
	}
	if len(rec.Items) > 0 && rec.Subtotal != nil {
		if rec.ItemsTotal().Sub(*rec.Subtotal).Abs().LessThan(centTolerance) {
			validation += 0.2
		}
	}
	if validation > 1.0 {
		validation = 1.0
	}
	score += validation * 0.1

	if score > 1.0 {
		score = 1.0
	}
	return score
}
