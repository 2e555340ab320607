package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/fixturegate/fixturegate/internal/calendar"
	"github.com/fixturegate/fixturegate/internal/fixtures"
	"github.com/fixturegate/fixturegate/internal/store"
)

// DateSource reports how one date's fixtures were served for a window.
type DateSource struct {
	Date   calendar.Date `json:"date"`
	Source string        `json:"source"`
	Stale  bool          `json:"stale,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// WindowResult is the merged upcoming-matches view.
type WindowResult struct {
	fixtures.Selection
	// Source is window_live, window_cache, window_partial or window_none.
	Source string       `json:"source"`
	Dates  []DateSource `json:"dates"`
}

// Window merges the fixtures of every in-scope date (today, and tomorrow
// when enabled) and selects the matches kicking off in the next hours.
// Dates that cannot be served are reported, not returned as errors.
func (m *Manager) Window(ctx context.Context, hours int) (WindowResult, error) {
	if hours <= 0 {
		hours = m.cfg.Window.Hours
	}

	var res WindowResult
	var merged []fixtures.Match
	var warnings []string
	live, cache := false, false

	for _, d := range m.cal.ScopeDates() {
		key := store.Key{Kind: store.KindFixtures, Date: d}
		snap, err := m.Get(ctx, key, Options{})
		if err != nil {
			ds := DateSource{Date: d, Source: "none"}
			var ue *UnavailableError
			if errors.As(err, &ue) {
				ds.Reason = ue.Reason
			}
			res.Dates = append(res.Dates, ds)
			warnings = append(warnings, fmt.Sprintf("Unable to load fixtures for %s and no cache is available.", d))
			continue
		}
		res.Dates = append(res.Dates, DateSource{Date: d, Source: string(snap.Source), Stale: snap.Stale, Reason: snap.Reason})
		switch snap.Source {
		case SourceLive:
			live = true
		case SourceCache:
			cache = true
		}

		ms, err := fixtures.Decode(snap.Payload)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Fixtures for %s could not be decoded.", d))
			continue
		}
		merged = append(merged, ms...)
	}

	opts := m.cfg.Window
	opts.Hours = hours
	merged = m.logoIndex(ctx).Enrich(fixtures.Dedupe(fixtures.FilterLeagues(merged, m.cfg.Leagues)))
	res.Selection = fixtures.Select(merged, m.cal.Now(), opts)
	res.Warnings = append(warnings, res.Warnings...)

	switch {
	case live && cache:
		res.Source = "window_partial"
	case live:
		res.Source = "window_live"
	case cache:
		res.Source = "window_cache"
	default:
		res.Source = "window_none"
	}
	return res, nil
}
