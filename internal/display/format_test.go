package display

import (
	"testing"
	"time"
)

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "now"},
		{"negative", -5 * time.Minute, "now"},
		{"30 minutes", 30 * time.Minute, "30m"},
		{"0 minutes (59s)", 59 * time.Second, "0m"},
		{"2 hours 15 min", 2*time.Hour + 15*time.Minute, "2h 15m"},
		{"1 hour 0 min", 1 * time.Hour, "1h 0m"},
		{"1 day 3 hours", 27 * time.Hour, "1d 3h"},
		{"2 days 0 hours", 48 * time.Hour, "2d 0h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCountdown(tt.d); got != tt.want {
				t.Errorf("FormatCountdown(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "never"},
		{"seconds", now.Add(-20 * time.Second), "just now"},
		{"minutes", now.Add(-45 * time.Minute), "45m ago"},
		{"hours", now.Add(-3*time.Hour - 5*time.Minute), "3h 5m ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAge(tt.t, now); got != tt.want {
				t.Errorf("FormatAge() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBudgetColor(t *testing.T) {
	tests := []struct {
		name      string
		made, max int
		locked    bool
		want      string
	}{
		{"unused", 0, 25, false, "green"},
		{"under half", 12, 25, false, "green"},
		{"half", 13, 25, false, "yellow"},
		{"high", 20, 25, false, "red"},
		{"spent", 25, 25, false, "red"},
		{"locked", 1, 25, true, "red"},
		{"no budget", 0, 0, false, "red"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BudgetColor(tt.made, tt.max, tt.locked); got != tt.want {
				t.Errorf("BudgetColor(%d, %d, %v) = %q, want %q", tt.made, tt.max, tt.locked, got, tt.want)
			}
		})
	}
}
