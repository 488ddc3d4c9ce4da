package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// parseDelimited reads the semicolon-separated export format. The first row
// names the columns; recognized names are date, amount, currency,
// communication, counterparty and account (case-insensitive). Amounts use a
// locale decimal comma with optional thousands dots.
func parseDelimited(data []byte) ([]Transaction, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Reason: "empty file"}
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["date"]; !ok {
		return nil, &ParseError{Line: 1, Reason: "missing date column"}
	}
	if _, ok := cols["amount"]; !ok {
		return nil, &ParseError{Line: 1, Reason: "missing amount column"}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var txns []Transaction
	for n, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		t := Transaction{SequenceNo: n + 1, Currency: "EUR"}

		rawDate := field(row, "date")
		t.ValueDate, t.DateValid, t.Notes = parseDelimitedDate(rawDate)

		rawAmount := field(row, "amount")
		if amt, err := parseCommaAmount(rawAmount); err == nil {
			t.Amount = amt
		} else {
			t.Amount = decimal.Zero
			t.Notes = append(t.Notes, fmt.Sprintf("amount %q: unparsable, zero used", rawAmount))
		}

		if c := field(row, "currency"); c != "" {
			t.Currency = c
		}
		t.Communication = field(row, "communication")
		t.CounterpartyName = field(row, "counterparty")
		t.CounterpartyAccount = field(row, "account")
		t.ExtractedNumber = ExtractInvoiceNumber(t.Communication)

		txns = append(txns, t)
	}
	return txns, nil
}

// parseDelimitedDate accepts DD/MM/YYYY or DD-MM-YYYY and routes the
// components through the shared fallback chain.
func parseDelimitedDate(raw string) (t time.Time, valid bool, notes []string) {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '/' || r == '-' || r == '.' })
	if len(parts) != 3 {
		return epoch, false, []string{fmt.Sprintf("date %q: unparsable, epoch sentinel used", raw)}
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return epoch, false, []string{fmt.Sprintf("date %q: non-numeric, epoch sentinel used", raw)}
	}
	return parseDate(day, month, year, raw)
}

// parseCommaAmount parses "1.234,56" style amounts into a decimal.
func parseCommaAmount(raw string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(raw, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.ReplaceAll(s, " ", "")
	return decimal.NewFromString(s)
}
