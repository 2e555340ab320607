package httpclient

import "strings"

const maxSummary = 120

// SummarizeBody shortens a response body for error messages and stored
// last_error fields: whitespace runs collapse to one space and anything past
// 120 runes is cut with "...".
func SummarizeBody(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if s == "" {
		return "empty body"
	}
	if r := []rune(s); len(r) > maxSummary {
		return string(r[:maxSummary]) + "..."
	}
	return s
}
