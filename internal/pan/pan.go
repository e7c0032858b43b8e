// Package pan holds helpers for handling card numbers outside the store.
package pan

import "strings"

// Normalize strips spaces, tabs and dashes.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, s)
}

// Mask hides everything but the BIN and the last four digits of long
// numbers, and everything but the last four of shorter ones. Use it
// whenever a card number ends up in a log line or an event.
func Mask(number string) string {
	cleaned := Normalize(number)
	n := len(cleaned)
	if n == 0 {
		return ""
	}
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	if n < 10 {
		return strings.Repeat("*", n-4) + cleaned[n-4:]
	}
	return cleaned[:6] + strings.Repeat("*", n-10) + cleaned[n-4:]
}
