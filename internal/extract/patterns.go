package extract

import "regexp"

// Pattern families are flat ordered slices. Every extraction walks its
// family in order and stops at the first match.

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
	regexp.MustCompile(`(?i)(\d{4}[/-]\d{1,2}[/-]\d{1,2})`),
	regexp.MustCompile(`(?i)((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{2,4})`),
	regexp.MustCompile(`(?i)(\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{2,4})`),
}

// dateLayouts are tried in order against each date pattern match.
var dateLayouts = []string{
	"1/2/2006", "1-2-2006",
	"2006/1/2", "2006-1-2",
	"1/2/06", "1-2-06",
	"January 2, 2006", "Jan 2, 2006",
	"January 2 2006", "Jan 2 2006",
	"2 January 2006", "2 Jan 2006",
}

var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d{1,2}:\d{2}(?::\d{2})?\s*(?:am|pm)?)`),
	regexp.MustCompile(`(?i)((?:1[0-2]|0?[1-9]):\d{2}\s*(?:am|pm))`),
}

var totalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:total|amount due|balance due|grand total)[:\s]*\$?(\d+(?:,\d{3})*\.\d{2})`),
	regexp.MustCompile(`(?i)\btotal[:\s]*(\d+\.\d{2})`),
}

var subtotalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:subtotal|sub total|sub-total)[:\s]*\$?(\d+(?:,\d{3})*\.\d{2})`),
	regexp.MustCompile(`(?i)subtotal[:\s]*(\d+\.\d{2})`),
}

var taxPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:tax|sales tax|vat)[:\s]*\$?(\d+(?:,\d{3})*\.\d{2})`),
	regexp.MustCompile(`(?i)\btax[:\s]*(\d+\.\d{2})`),
}

var tipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:tip|gratuity)[:\s]*\$?(\d+(?:,\d{3})*\.\d{2})`),
}

var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?([0-9]{3})\)?[-.\s]?([0-9]{3})[-.\s]?([0-9]{4})`),
	regexp.MustCompile(`(\d{3}[-.\s]\d{3}[-.\s]\d{4})`),
}

var receiptNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:receipt|ref|reference|order)[#\s:]*([a-z0-9]+)`),
	regexp.MustCompile(`(?i)#([a-z0-9]{4,})`),
}

var paymentPattern = regexp.MustCompile(`(?i)(visa|mastercard|amex|american express|discover|cash|credit|debit)(?:\s+ending\s+in\s+(\d{4}))?`)

// itemPatterns match one whole receipt line. The quantity shapes come
// first so the generic description+price shape only catches lines the
// specific ones rejected.
var itemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d+)\s+(.+?)\s+\$?(\d+\.\d{2})\s+\$?(\d+\.\d{2})$`),     // qty description unit total
	regexp.MustCompile(`^(.+?)\s+(\d+)\s*x\s*\$?(\d+\.\d{2})\s+\$?(\d+\.\d{2})$`), // description qty x unit total
	regexp.MustCompile(`^(.+?)\s+\$?(\d+\.\d{2})$`),                               // description price
}

var addressIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d+\s+\w+\s+(st|street|ave|avenue|rd|road|blvd|boulevard|dr|drive|ln|lane|ct|court)\b`),
	regexp.MustCompile(`\w+,\s*[A-Z]{2}\s*\d{5}`), // City, ST 12345
	regexp.MustCompile(`^\d{3,5}\s+\w+`),          // street number + name
}

var nonPrintable = regexp.MustCompile(`[^\x20-\x7E\n]`)
var intraLineSpace = regexp.MustCompile(`[ \t]+`)
