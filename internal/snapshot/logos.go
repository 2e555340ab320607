package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/fixturegate/fixturegate/internal/calendar"
	"github.com/fixturegate/fixturegate/internal/fixtures"
	"github.com/fixturegate/fixturegate/internal/store"
)

// logoIndexTTL bounds how long an index built from the store is reused,
// so refreshes made by other instances show up.
const logoIndexTTL = time.Minute

type logoCache struct {
	mu      sync.Mutex
	idx     *fixtures.LogoIndex
	builtAt time.Time
}

// logoIndex returns the logos indexed from the stored logos and standings
// of the configured leagues and the in-scope fixtures.
func (m *Manager) logoIndex(ctx context.Context) *fixtures.LogoIndex {
	m.logos.mu.Lock()
	defer m.logos.mu.Unlock()
	now := m.cal.Now()
	if m.logos.idx != nil && now.Sub(m.logos.builtAt) < logoIndexTTL {
		return m.logos.idx
	}

	idx := fixtures.NewLogoIndex()
	today := m.cal.Today()
	for _, league := range m.cfg.LogoLeagues {
		if p := m.latestPayload(ctx, store.KindLogos, today, league); p != nil {
			_ = idx.AddTeams(p)
		}
		if p := m.latestPayload(ctx, store.KindStandings, today, league); p != nil {
			_ = idx.AddStandings(p)
		}
	}
	for _, d := range m.cal.ScopeDates() {
		e, found, err := m.load(ctx, store.Key{Kind: store.KindFixtures, Date: d})
		if err != nil || !found || !e.HasPayload() {
			continue
		}
		if ms, err := fixtures.Decode(e.Payload); err == nil {
			idx.AddMatches(ms)
		}
	}
	m.logos.idx = idx
	m.logos.builtAt = now
	return idx
}

// latestPayload reads a league key for today, or yesterday when today's
// has not been warmed yet.
func (m *Manager) latestPayload(ctx context.Context, kind store.Kind, today calendar.Date, league int) []byte {
	for _, d := range []calendar.Date{today, today.AddDays(-1)} {
		e, found, err := m.load(ctx, store.Key{Kind: kind, Date: d, League: league})
		if err == nil && found && e.HasPayload() {
			return e.Payload
		}
	}
	return nil
}

func (m *Manager) invalidateLogos() {
	m.logos.mu.Lock()
	m.logos.idx = nil
	m.logos.mu.Unlock()
}

// enrich fills logo gaps in a fixtures snapshot's served view.
func (m *Manager) enrich(ctx context.Context, snap *Snapshot) {
	if snap.Key.Kind != store.KindFixtures || len(snap.Payload) == 0 {
		return
	}
	if view, ok := m.logoIndex(ctx).EnrichPayload(snap.Payload); ok {
		snap.View = view
	}
}
