package executor

import (
	"strings"
	"unicode"
)

// Normalize strips trailing whitespace, including the final newline most
// programs print.
func Normalize(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// Compare reports whether actual matches expected once both are normalized.
// Leading whitespace and inner whitespace are significant.
func Compare(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}
