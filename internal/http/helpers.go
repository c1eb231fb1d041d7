package http

import (
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

// formatAmount renders a whole amount with digit grouping, e.g. 1,234,567.
func formatAmount(n int64) string {
	return humanize.Comma(n)
}

// sanitizeInput trims the value and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t', r == '\n', r == '\r':
			return r
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
