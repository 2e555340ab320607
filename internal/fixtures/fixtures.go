// Package fixtures decodes api-sports fixture payloads and selects the
// matches kicking off in an upcoming window.
package fixtures

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	MinWindowHours = 1
	MaxWindowHours = 48
)

type Team struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

type League struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Logo   string `json:"logo,omitempty"`
	Season int    `json:"season,omitempty"`
}

// Match is one row of a fixtures response. Raw keeps the row as the
// provider sent it.
type Match struct {
	ID      int             `json:"id,omitempty"`
	Kickoff time.Time       `json:"kickoff"`
	League  League          `json:"league"`
	Home    Team            `json:"home"`
	Away    Team            `json:"away"`
	Raw     json.RawMessage `json:"-"`
}

type row struct {
	Fixture struct {
		ID   *int   `json:"id"`
		Date string `json:"date"`
	} `json:"fixture"`
	League League `json:"league"`
	Teams  struct {
		Home Team `json:"home"`
		Away Team `json:"away"`
	} `json:"teams"`
}

// Decode reads the response array of a fixtures payload. Rows that do not
// look like fixtures are skipped; rows with an unparseable kickoff keep a
// zero Kickoff.
func Decode(payload []byte) ([]Match, error) {
	var doc struct {
		Response []json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decoding fixtures: %w", err)
	}
	matches := make([]Match, 0, len(doc.Response))
	for _, raw := range doc.Response {
		var r row
		if json.Unmarshal(raw, &r) != nil {
			continue
		}
		m := Match{
			League: r.League,
			Home:   r.Teams.Home,
			Away:   r.Teams.Away,
			Raw:    raw,
		}
		if r.Fixture.ID != nil {
			m.ID = *r.Fixture.ID
		}
		if t, err := parseKickoff(r.Fixture.Date); err == nil {
			m.Kickoff = t
		}
		m.League.Logo = cleanLogo(m.League.Logo)
		m.Home.Logo = cleanLogo(m.Home.Logo)
		m.Away.Logo = cleanLogo(m.Away.Logo)
		matches = append(matches, m)
	}
	return matches, nil
}

func parseKickoff(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func cleanLogo(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return ""
}

// DedupeKey is the fixture id, or league:home:away:kickoff when the
// provider sent no id.
func (m Match) DedupeKey() string {
	if m.ID != 0 {
		return strconv.Itoa(m.ID)
	}
	kickoff := ""
	if !m.Kickoff.IsZero() {
		kickoff = m.Kickoff.Format(time.RFC3339)
	}
	return fmt.Sprintf("%d:%s:%s:%s", m.League.ID,
		strings.ToLower(strings.TrimSpace(m.Home.Name)),
		strings.ToLower(strings.TrimSpace(m.Away.Name)),
		kickoff)
}

// FilterLeagues keeps matches whose league is listed. An empty list keeps
// everything.
func FilterLeagues(matches []Match, leagues []int) []Match {
	if len(leagues) == 0 {
		return matches
	}
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if slices.Contains(leagues, m.League.ID) {
			out = append(out, m)
		}
	}
	return out
}

// Dedupe drops repeated matches. The last occurrence wins, in the position
// of the first.
func Dedupe(matches []Match) []Match {
	idx := make(map[string]int, len(matches))
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		k := m.DedupeKey()
		if i, ok := idx[k]; ok {
			out[i] = m
			continue
		}
		idx[k] = len(out)
		out = append(out, m)
	}
	return out
}

// InWindow returns matches kicking off in [start, end], sorted by kickoff.
func InWindow(matches []Match, start, end time.Time) []Match {
	var out []Match
	for _, m := range matches {
		if m.Kickoff.IsZero() || m.Kickoff.Before(start) || m.Kickoff.After(end) {
			continue
		}
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b Match) int { return a.Kickoff.Compare(b.Kickoff) })
	return out
}

// ClampHours limits a window length to [MinWindowHours, MaxWindowHours].
func ClampHours(h int) int {
	return max(MinWindowHours, min(MaxWindowHours, h))
}

// WindowOptions configures Select.
type WindowOptions struct {
	Hours int
	// MinMatches triggers one extension of ExtensionHours when fewer
	// matches fall inside the window.
	MinMatches     int
	ExtensionHours int
}

// Selection is the outcome of Select.
type Selection struct {
	Matches  []Match   `json:"matches"`
	Start    time.Time `json:"window_start"`
	End      time.Time `json:"window_end"`
	Hours    int       `json:"window_hours"`
	Extended bool      `json:"extended"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Select picks the matches kicking off between now and now+Hours,
// extending the window once when it holds fewer than MinMatches and the
// extension finds more. The window never exceeds MaxWindowHours.
func Select(matches []Match, now time.Time, opts WindowOptions) Selection {
	hours := ClampHours(opts.Hours)
	sel := Selection{Start: now, End: now.Add(time.Duration(hours) * time.Hour), Hours: hours}
	sel.Matches = InWindow(matches, sel.Start, sel.End)

	if len(sel.Matches) < opts.MinMatches && opts.ExtensionHours > 0 {
		total := min(MaxWindowHours, hours+opts.ExtensionHours)
		if total > hours {
			end := now.Add(time.Duration(total) * time.Hour)
			if extended := InWindow(matches, now, end); len(extended) > len(sel.Matches) {
				sel.Matches = extended
				sel.End = end
				sel.Hours = total
				sel.Extended = true
				sel.Warnings = append(sel.Warnings,
					fmt.Sprintf("Auto-extended window to %dh due to limited upcoming fixtures.", total))
			}
		}
	}
	if len(sel.Matches) == 0 {
		sel.Warnings = append(sel.Warnings, fmt.Sprintf("No fixtures found in the next %d hours.", hours))
	}
	return sel
}
