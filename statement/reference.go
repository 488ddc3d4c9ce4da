package statement

import "regexp"

// Invoice numbers look like INV-260828-00012: a fixed prefix, a date-like
// six-digit segment and a five-digit sequence. Payers mangle the separators,
// so dashes and spaces between segments are optional. A shorter token with
// only the date segment is accepted as a secondary hint.
var (
	fullInvoicePattern  = regexp.MustCompile(`(?i)\bINV[-\s]?(\d{6})[-\s]?(\d{5})\b`)
	shortInvoicePattern = regexp.MustCompile(`(?i)\bINV[-\s]?(\d{6})\b`)
)

// ExtractInvoiceNumber scans free text for an invoice-number-shaped token and
// returns it in canonical form, or "" when nothing matches.
func ExtractInvoiceNumber(text string) string {
	if m := fullInvoicePattern.FindStringSubmatch(text); m != nil {
		return "INV-" + m[1] + "-" + m[2]
	}
	if m := shortInvoicePattern.FindStringSubmatch(text); m != nil {
		return "INV-" + m[1]
	}
	return ""
}
