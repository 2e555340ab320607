package display

import (
	"strconv"
	"time"
)

// FormatCountdown formats a duration as a compact human-readable
// countdown string (e.g. "2d 3h", "5h 42m", "15m").
func FormatCountdown(d time.Duration) string {
	total := int(d.Seconds())
	if total <= 0 {
		return "now"
	}
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	if days > 0 {
		return formatDH(days, hours)
	}
	if hours > 0 {
		return formatHM(hours, minutes)
	}
	return formatM(minutes)
}

// FormatAge renders how long ago t was, relative to now.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < time.Minute {
		return "just now"
	}
	return FormatCountdown(d) + " ago"
}

func formatDH(d, h int) string { return strconv.Itoa(d) + "d " + strconv.Itoa(h) + "h" }
func formatHM(h, m int) string { return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m" }
func formatM(m int) string     { return strconv.Itoa(m) + "m" }

// BudgetColor returns "green", "yellow" or "red" for the share of the
// daily call budget already spent.
func BudgetColor(callsMade, maxCalls int, locked bool) string {
	if locked || maxCalls <= 0 || callsMade >= maxCalls {
		return "red"
	}
	pct := callsMade * 100 / maxCalls
	if pct < 50 {
		return "green"
	}
	if pct < 80 {
		return "yellow"
	}
	return "red"
}
