package pipeline

import (
	"fmt"
	"time"
)

// codeOrg is the organisation segment embedded in every pipeline code.
const codeOrg = "LNS"

// placeholderID marks an inquiry code written before the storage identity
// is known. The prefix can never collide with a final code because final
// codes always start with a numeric identity.
const placeholderID = "tmp"

// romanMonths maps calendar months to their code segment. There is
// deliberately no fallback entry: a month outside 1-12 is a programming
// error and must not silently produce an empty segment.
var romanMonths = map[int]string{
	1:  "I",
	2:  "II",
	3:  "III",
	4:  "IV",
	5:  "V",
	6:  "VI",
	7:  "VII",
	8:  "VIII",
	9:  "IX",
	10: "X",
	11: "XI",
	12: "XII",
}

// RomanMonth returns the Roman-numeral segment for a month.
// It panics when the month is outside 1-12.
func RomanMonth(month time.Month) string {
	segment, ok := romanMonths[int(month)]
	if !ok {
		panic(fmt.Sprintf("pipeline: month %d outside 1-12", int(month)))
	}
	return segment
}

// InquiryCode composes the final inquiry code from the storage-assigned
// identity and the inquiry date.
func InquiryCode(id int64, date time.Time) string {
	return fmt.Sprintf("%d/I/%s/%s/%d", id, codeOrg, RomanMonth(date.Month()), date.Year())
}

// PlaceholderInquiryCode composes the phase-1 code written with the initial
// insert, before the identity is known.
func PlaceholderInquiryCode(date time.Time) string {
	return fmt.Sprintf("%s/I/%s/%s/%d", placeholderID, codeOrg, RomanMonth(date.Month()), date.Year())
}

// QuotationCode composes a quotation code from the parent inquiry identity,
// the current negotiation count and the quotation's creation timestamp.
// The negotiation count is omitted while it is zero.
func QuotationCode(inquiryID int64, negotiationCount int, createdAt time.Time) string {
	prefix := "Q"
	if negotiationCount > 0 {
		prefix = fmt.Sprintf("Q%d", negotiationCount)
	}
	return fmt.Sprintf("%d/%s/%s/%s/%d", inquiryID, prefix, codeOrg, RomanMonth(createdAt.Month()), createdAt.Year())
}

// NegotiationCode composes a negotiation code. seq is the negotiation's
// position under its quotation, starting at 1.
func NegotiationCode(inquiryID int64, seq int, createdAt time.Time) string {
	return fmt.Sprintf("%d/N%d/%s/%s/%d", inquiryID, seq, codeOrg, RomanMonth(createdAt.Month()), createdAt.Year())
}

// PurchaseOrderCode composes a purchase order code.
func PurchaseOrderCode(inquiryID int64, createdAt time.Time) string {
	return fmt.Sprintf("%d/PO/%s/%s/%d", inquiryID, codeOrg, RomanMonth(createdAt.Month()), createdAt.Year())
}
