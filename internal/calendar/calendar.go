// Package calendar supplies the current time and the logical dates used to
// key both the snapshot cache and the daily quota.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrHistorical     = errors.New("historical fetch is disabled by policy")
	ErrBeyondTomorrow = errors.New("fetch beyond tomorrow is disabled by policy")
	ErrTomorrow       = errors.New("fetch for tomorrow is disabled by policy")
)

// Date is a civil date in the reference timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const layout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("date must be in YYYY-MM-DD format: %w", err)
	}
	return DateOf(t), nil
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

// Start returns midnight of d in loc.
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

func (d Date) Before(o Date) bool { return d.compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.compare(o) > 0 }

func (d Date) compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return d.Year - o.Year
	case d.Month != o.Month:
		return int(d.Month) - int(o.Month)
	default:
		return d.Day - o.Day
	}
}

// Season returns the football season a date belongs to. Seasons start in
// July, so 2026-02-24 is in season 2025.
func (d Date) Season() int {
	if d.Month >= time.July {
		return d.Year
	}
	return d.Year - 1
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Calendar resolves "today" and fetch scope in a fixed reference timezone.
type Calendar struct {
	clock         clockwork.Clock
	loc           *time.Location
	allowTomorrow bool
}

// New returns a Calendar. A nil clock uses the real clock and a nil
// location uses time.Local.
func New(clock clockwork.Clock, loc *time.Location, allowTomorrow bool) *Calendar {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{clock: clock, loc: loc, allowTomorrow: allowTomorrow}
}

func (c *Calendar) Clock() clockwork.Clock    { return c.clock }
func (c *Calendar) Location() *time.Location { return c.loc }
func (c *Calendar) AllowsTomorrow() bool      { return c.allowTomorrow }

func (c *Calendar) Now() time.Time { return c.clock.Now().In(c.loc) }

func (c *Calendar) Today() Date { return DateOf(c.Now()) }

func (c *Calendar) Tomorrow() Date { return c.Today().AddDays(1) }

// InScope reports whether d may be fetched from upstream right now.
func (c *Calendar) InScope(d Date) bool {
	return c.Scope(d) == nil
}

// Scope returns nil when d is fetchable, or the policy it violates.
func (c *Calendar) Scope(d Date) error {
	today := c.Today()
	switch {
	case d == today:
		return nil
	case d.Before(today):
		return ErrHistorical
	case d == today.AddDays(1):
		if c.allowTomorrow {
			return nil
		}
		return ErrTomorrow
	default:
		return ErrBeyondTomorrow
	}
}

// ScopeDates returns the dates currently in scope, today first.
func (c *Calendar) ScopeDates() []Date {
	today := c.Today()
	if c.allowTomorrow {
		return []Date{today, today.AddDays(1)}
	}
	return []Date{today}
}

// NextMidnight returns the start of tomorrow in the reference timezone.
func (c *Calendar) NextMidnight() time.Time {
	return c.Tomorrow().Start(c.loc)
}

// Resolve parses a date argument. "", "today" and "tomorrow" are relative
// to the reference timezone; anything else must be YYYY-MM-DD.
func (c *Calendar) Resolve(s string) (Date, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return c.Today(), nil
	case "tomorrow":
		return c.Tomorrow(), nil
	}
	return ParseDate(strings.TrimSpace(s))
}
