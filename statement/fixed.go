package statement

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Fixed-width record layout. Every line starts with a record-type tag:
//
//	0  header: file creation date (DDMMYY) and account
//	1  movement start: sequence, sign digit, amount, value date, communication
//	2  communication continuation for the current movement
//	3  counterparty account and name for the current movement
//	8  footer: movement record count
//	9  trailer, end of file
//
// Offsets within a movement record:
//
//	[1:5)   4-digit sequence number
//	[5]     sign digit: 0 credit, 1 debit
//	[6:21)  15-digit amount in thousandths
//	[21:27) value date DDMMYY
//	[27:)   communication, free text
const (
	fixedSeqEnd   = 5
	fixedSignPos  = 5
	fixedAmtEnd   = 21
	fixedDateEnd  = 27
	fixedCptyName = 21
)

func parseFixed(data []byte) ([]Transaction, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	var (
		txns       []Transaction
		current    *Transaction
		sawHeader  bool
		lineNo     int
		footerSeen bool
	)

	flush := func() {
		if current != nil {
			current.ExtractedNumber = ExtractInvoiceNumber(current.Communication)
			txns = append(txns, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch line[0] {
		case '0':
			sawHeader = true
		case '1':
			if !sawHeader {
				return nil, &ParseError{Line: lineNo, Reason: "movement record before header"}
			}
			flush()
			t, err := parseMovement(line, lineNo)
			if err != nil {
				return nil, err
			}
			current = &t
		case '2':
			if current == nil {
				return nil, &ParseError{Line: lineNo, Reason: "continuation record without movement"}
			}
			if len(line) > fixedSeqEnd {
				current.Communication = strings.TrimSpace(current.Communication + " " + strings.TrimSpace(line[fixedSeqEnd:]))
			}
		case '3':
			if current == nil {
				return nil, &ParseError{Line: lineNo, Reason: "counterparty record without movement"}
			}
			if len(line) > fixedCptyName {
				current.CounterpartyAccount = strings.TrimSpace(line[fixedSeqEnd:fixedCptyName])
				current.CounterpartyName = strings.TrimSpace(line[fixedCptyName:])
			} else if len(line) > fixedSeqEnd {
				current.CounterpartyAccount = strings.TrimSpace(line[fixedSeqEnd:])
			}
		case '8':
			flush()
			footerSeen = true
			if count, err := strconv.Atoi(strings.TrimSpace(line[1:])); err == nil && count != len(txns) {
				return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("footer declares %d movements, found %d", count, len(txns))}
			}
		case '9':
			flush()
			footerSeen = true
		default:
			return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("unknown record tag %q", line[0])}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Line: lineNo, Reason: err.Error()}
	}
	if !sawHeader {
		return nil, &ParseError{Reason: "missing header record"}
	}
	if !footerSeen {
		flush()
	}
	return txns, nil
}

func parseMovement(line string, lineNo int) (Transaction, error) {
	if len(line) < fixedDateEnd {
		return Transaction{}, &ParseError{Line: lineNo, Reason: "movement record too short"}
	}

	var t Transaction
	t.Currency = "EUR"
	t.SequenceNo, _ = strconv.Atoi(strings.TrimSpace(line[1:fixedSeqEnd]))

	raw := strings.TrimSpace(line[fixedSignPos+1 : fixedAmtEnd])
	if cents, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// amounts are recorded in thousandths of a unit
		t.Amount = decimal.New(cents, -3)
		if line[fixedSignPos] == '1' {
			t.Amount = t.Amount.Neg()
		}
	} else {
		t.Amount = decimal.Zero
		t.Notes = append(t.Notes, fmt.Sprintf("amount %q: unparsable, zero used", raw))
	}

	date, valid, notes := parseDigits(line[fixedAmtEnd:fixedDateEnd])
	t.ValueDate = date
	t.DateValid = valid
	t.Notes = append(t.Notes, notes...)

	if len(line) > fixedDateEnd {
		t.Communication = strings.TrimSpace(line[fixedDateEnd:])
	}
	return t, nil
}
