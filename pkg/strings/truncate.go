// Package strings holds display helpers for terminal output.
package strings

import (
	"strings"
)

// DefaultCellMaxLen is the widest a free-text table cell gets.
const DefaultCellMaxLen = 32

// MinTruncateLen is the smallest maxLen that still leaves room for one
// character plus "...".
const MinTruncateLen = 4

const ellipsis = "..."

// Truncate collapses whitespace in s to single spaces and cuts it to maxLen
// runes, ending in "..." when cut. maxLen is clamped to MinTruncateLen.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-len(ellipsis)]) + ellipsis
	}
	return s
}

// TruncateMiddle keeps the start and end of s and replaces the middle with
// "...", so "alice.example@gmail.com" stays recognisable. Three fifths of
// the remaining room go to the start.
func TruncateMiddle(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	available := maxLen - len(ellipsis)
	startLen := (available * 3) / 5
	if startLen == 0 {
		startLen = 1
	}
	endLen := available - startLen
	return string(runes[:startLen]) + ellipsis + string(runes[len(runes)-endLen:])
}
