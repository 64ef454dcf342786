package match

import "strings"

// Normalize lowercases a transcript, trims it, and collapses runs of
// whitespace so noisy recognizer output compares cleanly.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
