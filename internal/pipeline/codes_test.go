package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRomanMonth(t *testing.T) {
	expected := map[time.Month]string{
		time.January:   "I",
		time.February:  "II",
		time.March:     "III",
		time.April:     "IV",
		time.May:       "V",
		time.June:      "VI",
		time.July:      "VII",
		time.August:    "VIII",
		time.September: "IX",
		time.October:   "X",
		time.November:  "XI",
		time.December:  "XII",
	}
	for month, want := range expected {
		assert.Equal(t, want, RomanMonth(month))
	}
}

func TestRomanMonthPanicsOutsideRange(t *testing.T) {
	assert.Panics(t, func() { RomanMonth(time.Month(0)) })
	assert.Panics(t, func() { RomanMonth(time.Month(13)) })
}

func TestInquiryCode(t *testing.T) {
	date := time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "42/I/LNS/V/2025", InquiryCode(42, date))
}

func TestPlaceholderInquiryCode(t *testing.T) {
	date := time.Date(2025, time.December, 31, 23, 59, 0, 0, time.UTC)
	code := PlaceholderInquiryCode(date)
	assert.Equal(t, "tmp/I/LNS/XII/2025", code)

	// a placeholder can never equal any final code
	for id := int64(1); id <= 100; id++ {
		require.NotEqual(t, InquiryCode(id, date), code)
	}
}

func TestQuotationCode(t *testing.T) {
	createdAt := time.Date(2025, time.May, 12, 9, 30, 0, 0, time.UTC)

	t.Run("no negotiations keeps bare Q", func(t *testing.T) {
		assert.Equal(t, "42/Q/LNS/V/2025", QuotationCode(42, 0, createdAt))
	})

	t.Run("negotiation count becomes suffix", func(t *testing.T) {
		assert.Equal(t, "42/Q1/LNS/V/2025", QuotationCode(42, 1, createdAt))
		assert.Equal(t, "42/Q2/LNS/V/2025", QuotationCode(42, 2, createdAt))
		assert.Equal(t, "42/Q17/LNS/V/2025", QuotationCode(42, 17, createdAt))
	})

	t.Run("month and year come from quotation creation time", func(t *testing.T) {
		january := time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, "42/Q/LNS/I/2026", QuotationCode(42, 0, january))
	})
}

func TestNegotiationCode(t *testing.T) {
	createdAt := time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "7/N1/LNS/VIII/2025", NegotiationCode(7, 1, createdAt))
	assert.Equal(t, "7/N3/LNS/VIII/2025", NegotiationCode(7, 3, createdAt))
}

func TestPurchaseOrderCode(t *testing.T) {
	createdAt := time.Date(2025, time.October, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "9/PO/LNS/X/2025", PurchaseOrderCode(9, createdAt))
}

func TestCodesAreDistinctAcrossDocumentTypes(t *testing.T) {
	at := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	codes := []string{
		InquiryCode(5, at),
		QuotationCode(5, 0, at),
		NegotiationCode(5, 1, at),
		PurchaseOrderCode(5, at),
	}
	seen := map[string]bool{}
	for _, code := range codes {
		require.False(t, seen[code], fmt.Sprintf("duplicate code %s", code))
		seen[code] = true
	}
}
