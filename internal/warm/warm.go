// Package warm refreshes the in-scope snapshots ahead of interactive reads.
package warm

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fixturegate/fixturegate/internal/calendar"
	"github.com/fixturegate/fixturegate/internal/fixtures"
	"github.com/fixturegate/fixturegate/internal/gate"
	"github.com/fixturegate/fixturegate/internal/quota"
	"github.com/fixturegate/fixturegate/internal/snapshot"
	"github.com/fixturegate/fixturegate/internal/store"
)

// Manager is the part of snapshot.Manager a warm run needs.
type Manager interface {
	Warm(ctx context.Context, key store.Key) (snapshot.WarmResult, error)
	Get(ctx context.Context, key store.Key, opts snapshot.Options) (snapshot.Snapshot, error)
	QuotaStatus(ctx context.Context) (quota.Status, error)
}

// Report summarizes one warm run.
type Report struct {
	RequestedDates []calendar.Date       `json:"requested_dates"`
	FixturesLoaded int                   `json:"fixtures_loaded"`
	LeaguesWarmed  int                   `json:"standings_leagues_warmed"`
	SourceByDate   map[string]string     `json:"source_by_date"`
	Keys           []snapshot.WarmResult `json:"keys"`
	Warnings       []string              `json:"warnings,omitempty"`
	Quota          *quota.Status         `json:"api_budget,omitempty"`
}

type Warmer struct {
	mgr     Manager
	cal     *calendar.Calendar
	leagues []int
	logger  *log.Logger
}

// New returns a Warmer covering fixtures for every in-scope date plus
// standings and logos for leagues.
func New(mgr Manager, cal *calendar.Calendar, leagues []int, logger *log.Logger) *Warmer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Warmer{mgr: mgr, cal: cal, leagues: slices.Clone(leagues), logger: logger}
}

// Notify is called once per key as a warm run settles it.
type Notify func(res snapshot.WarmResult, err error)

// Plan lists the keys a run would visit, in visiting order.
func (w *Warmer) Plan() []store.Key {
	var keys []store.Key
	for _, d := range w.cal.ScopeDates() {
		keys = append(keys, store.Key{Kind: store.KindFixtures, Date: d})
	}
	today := w.cal.Today()
	for _, league := range w.leagues {
		keys = append(keys,
			store.Key{Kind: store.KindStandings, Date: today, League: league},
			store.Key{Kind: store.KindLogos, Date: today, League: league},
		)
	}
	return keys
}

// Run warms fixtures first, then standings and logos for each league. It
// keeps going past failures; they end up in the report.
func (w *Warmer) Run(ctx context.Context) Report {
	return w.RunNotify(ctx, nil)
}

// RunNotify is Run with a per-key callback. notify may be nil.
func (w *Warmer) RunNotify(ctx context.Context, notify Notify) Report {
	rep := Report{SourceByDate: make(map[string]string)}

	for _, d := range w.cal.ScopeDates() {
		if ctx.Err() != nil {
			break
		}
		rep.RequestedDates = append(rep.RequestedDates, d)
		key := store.Key{Kind: store.KindFixtures, Date: d}
		w.warm(ctx, key, &rep, notify)

		snap, err := w.mgr.Get(ctx, key, snapshot.Options{})
		if err != nil {
			rep.SourceByDate[d.String()] = "none"
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("No fixtures available for %s.", d))
			continue
		}
		src := string(snap.Source)
		if snap.Stale {
			src += "_stale"
		}
		rep.SourceByDate[d.String()] = src
		ms, err := fixtures.Decode(snap.Payload)
		if err != nil {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("Fixtures for %s could not be decoded.", d))
			continue
		}
		rep.FixturesLoaded += len(ms)
	}

	today := w.cal.Today()
	for _, league := range w.leagues {
		if ctx.Err() != nil {
			break
		}
		standings := w.warm(ctx, store.Key{Kind: store.KindStandings, Date: today, League: league}, &rep, notify)
		w.warm(ctx, store.Key{Kind: store.KindLogos, Date: today, League: league}, &rep, notify)
		if standings {
			rep.LeaguesWarmed++
		}
	}

	if st, err := w.mgr.QuotaStatus(ctx); err == nil {
		rep.Quota = &st
	} else {
		rep.Warnings = append(rep.Warnings, "Quota status unavailable.")
	}
	rep.Warnings = dedupe(rep.Warnings)
	return rep
}

// warm reports whether key now holds a servable snapshot. A key held back
// by the cooldown is retried once after the wait the gate asked for.
func (w *Warmer) warm(ctx context.Context, key store.Key, rep *Report, notify Notify) bool {
	res, err := w.mgr.Warm(ctx, key)
	if err == nil && res.Reason == string(gate.ReasonThrottled) && res.RetryAfter > 0 {
		w.logger.Debug("waiting out cooldown", "key", key.String(), "wait", res.RetryAfter)
		if w.sleep(ctx, res.RetryAfter) {
			res, err = w.mgr.Warm(ctx, key)
		}
	}
	rep.Keys = append(rep.Keys, res)
	if notify != nil {
		notify(res, err)
	}
	if err != nil {
		w.logger.Error("warming snapshot", "key", key.String(), "err", err)
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("Warming %s failed: %v", key, err))
		return false
	}
	w.logger.Debug("warmed", "key", key.String(), "refreshed", res.Refreshed, "reason", res.Reason)
	return res.Refreshed || res.Reason == string(snapshot.StateFresh)
}

// sleep waits d on the calendar clock. It reports false if ctx ends first.
func (w *Warmer) sleep(ctx context.Context, d time.Duration) bool {
	t := w.cal.Clock().NewTimer(d)
	defer t.Stop()
	select {
	case <-t.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
