// Package statement parses uploaded bank statement files into normalized
// transaction records. Two formats are supported: a fixed-width record format
// with type-tagged lines and a semicolon-delimited export with named columns.
//
// Parsing is best-effort per record: malformed dates and amounts produce a
// fallback value plus an explanatory note on the record instead of an error.
// Only broken file framing (missing header, unknown record tag, record-count
// mismatch) fails the whole file.
package statement

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Supported formats.
const (
	FormatFixed     = "fixed"
	FormatDelimited = "delimited"
)

// Transaction is one normalized statement line, ready for ingestion.
type Transaction struct {
	SequenceNo          int
	ValueDate           time.Time
	DateValid           bool
	Amount              decimal.Decimal
	Currency            string
	Communication       string
	CounterpartyName    string
	CounterpartyAccount string
	ExtractedNumber     string // invoice-number-shaped token found in the communication, "" if none
	Notes               []string
}

// ParseError reports broken file framing. Per-record issues never produce a
// ParseError; they are collected as notes on the record.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("statement parse error at line %d: %s", e.Line, e.Reason)
	}
	return "statement parse error: " + e.Reason
}

// Parse converts the raw statement file into its normalized transactions.
func Parse(data []byte, format string) ([]Transaction, error) {
	switch format {
	case FormatFixed:
		return parseFixed(data)
	case FormatDelimited:
		return parseDelimited(data)
	default:
		return nil, &ParseError{Reason: "unsupported format " + strconv.Quote(format)}
	}
}

// DetectFormat guesses the statement format from the file name. Delimited
// exports carry a .csv extension; everything else is treated as fixed-width.
func DetectFormat(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatDelimited
	}
	return FormatFixed
}

// epoch is the sentinel date used when a value date is beyond repair.
var epoch = time.Unix(0, 0).UTC()

// parseDate turns day/month/year components into a value date. It never
// fails: an invalid day-month combination is retried with day and month
// swapped, then clamped to the first of the month, then replaced by the epoch
// sentinel. Every fallback appends a note and clears the validity flag.
func parseDate(day, month, year int, raw string) (time.Time, bool, []string) {
	if year < 100 {
		year += 2000
	}
	if d, ok := makeDate(day, month, year); ok {
		return d, true, nil
	}
	if d, ok := makeDate(month, day, year); ok {
		return d, false, []string{fmt.Sprintf("date %q: day/month swapped to parse", raw)}
	}
	m := month
	if m < 1 {
		m = 1
	} else if m > 12 {
		m = 12
	}
	if d, ok := makeDate(1, m, year); ok {
		return d, false, []string{fmt.Sprintf("date %q: invalid, clamped to first of month", raw)}
	}
	return epoch, false, []string{fmt.Sprintf("date %q: unparsable, epoch sentinel used", raw)}
}

// makeDate validates the components by round-tripping through time.Date,
// which silently normalizes out-of-range values.
func makeDate(day, month, year int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1970 || year > 9999 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || d.Month() != time.Month(month) || d.Year() != year {
		return time.Time{}, false
	}
	return d, true
}

// parseDigits parses a DDMMYY digit string through the fallback chain.
func parseDigits(raw string) (time.Time, bool, []string) {
	if len(raw) != 6 {
		return epoch, false, []string{fmt.Sprintf("date %q: expected 6 digits, epoch sentinel used", raw)}
	}
	day, err1 := strconv.Atoi(raw[0:2])
	month, err2 := strconv.Atoi(raw[2:4])
	year, err3 := strconv.Atoi(raw[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return epoch, false, []string{fmt.Sprintf("date %q: non-numeric, epoch sentinel used", raw)}
	}
	return parseDate(day, month, year, raw)
}
