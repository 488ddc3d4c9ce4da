package ledger

import "fmt"

// Communication builds the structured payment communication for an invoice,
// +++XXX/XXXX/XXXCC+++ where the last two digits are the payload mod 97
// (97 when the remainder is zero). The payload is the two-digit year followed
// by the invoice sequence number.
func Communication(year int, seq int64) string {
	payload := int64(year%100)*100000000 + seq%100000000
	check := payload % 97
	if check == 0 {
		check = 97
	}
	digits := fmt.Sprintf("%010d%02d", payload, check)
	return fmt.Sprintf("+++%s/%s/%s+++", digits[:3], digits[3:7], digits[7:])
}
