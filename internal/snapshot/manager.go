// Package snapshot serves fixture, standings and logo snapshots from the
// store and refreshes them through the fetch gate when they go stale.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/fixturegate/fixturegate/internal/calendar"
	"github.com/fixturegate/fixturegate/internal/fixtures"
	"github.com/fixturegate/fixturegate/internal/gate"
	"github.com/fixturegate/fixturegate/internal/metrics"
	"github.com/fixturegate/fixturegate/internal/quota"
	"github.com/fixturegate/fixturegate/internal/store"
	"github.com/fixturegate/fixturegate/internal/upstream"
)

// Fetcher performs one classified upstream call.
type Fetcher interface {
	Fetch(ctx context.Context, key store.Key) upstream.Result
}

type Config struct {
	TTL            time.Duration
	ErrorRetry     time.Duration
	TransientRetry time.Duration
	// RefreshTimeout bounds a refresh detached from its caller.
	RefreshTimeout time.Duration
	// Leagues filters window views. Empty keeps every league.
	Leagues []int
	// LogoLeagues are the leagues whose stored logos and standings feed
	// the logo index.
	LogoLeagues []int
	Window      fixtures.WindowOptions
}

// Snapshot is a served read.
type Snapshot struct {
	Key         store.Key           `json:"key"`
	Payload     []byte              `json:"-"`
	Source      Source              `json:"source"`
	FetchedAt   time.Time           `json:"fetched_at"`
	Stale       bool                `json:"stale"`
	State       State               `json:"state"`
	Reason      string              `json:"reason,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
	NextRetryAt time.Time           `json:"next_retry_at,omitzero"`
	Window      *fixtures.Selection `json:"window,omitempty"`

	// View is Payload with missing logos filled from the logo index, or
	// nil when nothing was filled. Payload stays the stored bytes.
	View []byte `json:"-"`
}

// Served is the payload to hand to readers.
func (s Snapshot) Served() []byte {
	if s.View != nil {
		return s.View
	}
	return s.Payload
}

// Document is the wire form of a Snapshot with the provider payload
// inlined as raw JSON.
type Document struct {
	Snapshot
	Payload json.RawMessage `json:"payload"`
}

// Document returns the wire form of s. A payload that is not valid JSON
// is rendered as null.
func (s Snapshot) Document() Document {
	payload := json.RawMessage(s.Served())
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	return Document{Snapshot: s, Payload: payload}
}

// Options tune a read. Window > 0 on a fixtures key attaches the matches
// kicking off in the next Window hours.
type Options struct {
	Window int
}

// WarmResult reports a proactive refresh.
type WarmResult struct {
	Key       store.Key `json:"key"`
	Refreshed bool      `json:"refreshed"`
	Reason    string    `json:"reason,omitempty"`

	// RetryAfter is how long the cooldown holds a throttled key.
	RetryAfter time.Duration `json:"-"`
}

type Manager struct {
	store   store.Snapshots
	gate    *gate.Gate
	ledger  *quota.Ledger
	fetcher Fetcher
	cal     *calendar.Calendar
	cfg     Config
	metrics *metrics.Metrics
	logger  *log.Logger

	group singleflight.Group
	logos logoCache
}

// Deps are the collaborators of a Manager. Metrics and Logger are optional.
type Deps struct {
	Store   store.Snapshots
	Gate    *gate.Gate
	Ledger  *quota.Ledger
	Fetcher Fetcher
	Cal     *calendar.Calendar
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

func New(d Deps, cfg Config) *Manager {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 30 * time.Second
	}
	logger := d.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{
		store:   d.Store,
		gate:    d.Gate,
		ledger:  d.Ledger,
		fetcher: d.Fetcher,
		cal:     d.Cal,
		cfg:     cfg,
		metrics: d.Metrics,
		logger:  logger,
	}
}

// outcome is the shared result of one refresh.
type outcome struct {
	snap       Snapshot
	refreshed  bool
	retryAfter time.Duration
	err        error
}

// Get serves key, refreshing it first when it is stale or missing and the
// gate allows. Denials degrade to the stored payload marked stale. The only
// error is ErrUnavailable.
func (m *Manager) Get(ctx context.Context, key store.Key, opts Options) (Snapshot, error) {
	out := m.resolve(ctx, key)
	if out.err != nil {
		m.metrics.Read("none", string(out.snap.State))
		return Snapshot{}, out.err
	}
	snap := out.snap
	m.metrics.Read(string(snap.Source), string(snap.State))
	m.enrich(ctx, &snap)
	if opts.Window > 0 && key.Kind == store.KindFixtures {
		snap.Window = m.windowView(ctx, snap.Payload, opts.Window)
	}
	return snap, nil
}

// Warm refreshes key when it is due, through the same path as Get.
func (m *Manager) Warm(ctx context.Context, key store.Key) (WarmResult, error) {
	out := m.resolve(ctx, key)
	res := WarmResult{Key: key, Refreshed: out.refreshed, RetryAfter: out.retryAfter}
	switch {
	case out.refreshed:
	case out.snap.Reason != "":
		res.Reason = out.snap.Reason
	case out.snap.State == StateFresh:
		res.Reason = string(StateFresh)
	}
	m.metrics.WarmKey(out.refreshed)
	if out.err != nil {
		var ue *UnavailableError
		if errors.As(out.err, &ue) {
			res.Reason = ue.Reason
		}
		// Nothing stored is an expected warm outcome; only a broken store
		// is reported as an error.
		if res.Reason == string(gate.ReasonStoreUnavailable) {
			return res, out.err
		}
	}
	return res, nil
}

// QuotaStatus reports today's ledger row.
func (m *Manager) QuotaStatus(ctx context.Context) (quota.Status, error) {
	st, err := m.ledger.Status(ctx)
	if err != nil {
		return quota.Status{}, err
	}
	m.metrics.Quota(st.CallsMade, st.MaxCalls, st.Locked)
	return st, nil
}

func (m *Manager) resolve(ctx context.Context, key store.Key) outcome {
	if err := key.Validate(); err != nil {
		return outcome{err: &UnavailableError{Key: key, Reason: "invalid_key", Err: err}}
	}
	entry, found, err := m.load(ctx, key)
	if err != nil {
		m.logger.Error("reading snapshot", "key", key.String(), "err", err)
		return outcome{err: &UnavailableError{Key: key, Reason: string(gate.ReasonStoreUnavailable), Err: err}}
	}

	now := m.cal.Now()
	state := Classify(entry, found, now, m.cfg.TTL)
	switch state {
	case StateFresh:
		return outcome{snap: cached(key, entry, state, "")}
	case StateErrorBackoff:
		return m.degrade(key, entry, state, string(StateErrorBackoff), nil)
	}

	ch := m.group.DoChan(key.String(), func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), key, entry, state), nil
	})
	select {
	case r := <-ch:
		return r.Val.(outcome)
	case <-ctx.Done():
		return m.degrade(key, entry, state, "cancelled", ctx.Err())
	}
}

func (m *Manager) load(ctx context.Context, key store.Key) (store.Entry, bool, error) {
	e, err := m.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return store.Entry{}, false, nil
	}
	if err != nil {
		return store.Entry{}, false, err
	}
	return e, true, nil
}

func (m *Manager) refresh(ctx context.Context, key store.Key, entry store.Entry, state State) outcome {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RefreshTimeout)
	defer cancel()

	permit, d := m.gate.Authorize(ctx, gate.Request{Key: key, Stale: state == StateStale})
	m.metrics.GateDecision(string(d.Reason))
	if permit == nil {
		if d.Err != nil && d.Reason != gate.ReasonScopeViolation {
			m.logger.Warn("fetch gate denied", "key", key.String(), "reason", d.Reason, "err", d.Err)
		} else {
			m.logger.Debug("fetch gate denied", "key", key.String(), "reason", d.Reason)
		}
		out := m.degrade(key, entry, state, string(d.Reason), d.Err)
		out.retryAfter = d.RetryAfter
		return out
	}

	res := m.fetcher.Fetch(ctx, key)
	m.metrics.UpstreamCall(string(key.Kind), string(res.Class))
	now := m.cal.Now()

	if res.Class == upstream.ClassSuccess {
		fresh := store.Entry{
			Payload:   res.Payload,
			FetchedAt: now,
			Status:    store.StatusOK,
			Source:    string(SourceLive),
			UpdatedAt: now,
		}
		m.put(ctx, key, fresh)
		m.invalidateLogos()
		m.complete(ctx, permit, store.OutcomeSuccess, time.Time{})
		if res.Exhausted {
			m.lock(ctx, key)
		}
		m.logger.Info("snapshot refreshed", "key", key.String(), "calls_made", permit.Counter.CallsMade, "max_calls", permit.Counter.MaxCalls)
		return outcome{snap: Snapshot{
			Key:       key,
			Payload:   res.Payload,
			Source:    SourceLive,
			FetchedAt: now,
			State:     StateFresh,
		}, refreshed: true}
	}

	retry := m.cfg.ErrorRetry
	settled := store.OutcomeFatal
	switch res.Class {
	case upstream.ClassDailyLimit:
		settled = store.OutcomeLimited
		m.lock(ctx, key)
	case upstream.ClassTransient:
		settled = store.OutcomeTransient
		retry = m.cfg.TransientRetry
	}
	retryAt := now.Add(retry)
	summary := upstream.Summarize(res.Err)

	failed := store.Entry{
		Payload:     entry.Payload,
		FetchedAt:   entry.FetchedAt,
		Status:      store.StatusError,
		NextRetryAt: retryAt,
		LastError:   summary,
		Source:      entry.Source,
		UpdatedAt:   now,
	}
	m.put(ctx, key, failed)
	m.complete(ctx, permit, settled, retryAt)
	m.logger.Warn("upstream refresh failed", "key", key.String(), "class", res.Class, "status", res.StatusCode, "err", res.Err, "retry_at", retryAt)

	return m.degrade(key, failed, state, string(res.Class), res.Err)
}

func (m *Manager) put(ctx context.Context, key store.Key, e store.Entry) {
	if err := m.store.Put(ctx, key, e); err != nil {
		m.logger.Error("writing snapshot", "key", key.String(), "err", err)
	}
}

func (m *Manager) complete(ctx context.Context, p *gate.Permit, o store.Outcome, retryAt time.Time) {
	if err := p.Complete(ctx, o, retryAt); err != nil {
		m.logger.Error("settling fetch claim", "key", p.Key().String(), "err", err)
	}
}

func (m *Manager) lock(ctx context.Context, key store.Key) {
	if err := m.ledger.RecordDailyLimitSignal(ctx); err != nil {
		m.logger.Error("locking daily quota", "key", key.String(), "err", err)
		return
	}
	m.logger.Warn("provider daily limit reached, quota locked until midnight", "key", key.String())
}

// degrade serves the stored payload marked stale, or ErrUnavailable when
// there is none.
func (m *Manager) degrade(key store.Key, e store.Entry, state State, reason string, cause error) outcome {
	if !e.HasPayload() {
		return outcome{
			snap: Snapshot{Key: key, State: state, Reason: reason},
			err:  &UnavailableError{Key: key, Reason: reason, Err: cause},
		}
	}
	snap := cached(key, e, state, reason)
	snap.Stale = true
	return outcome{snap: snap}
}

func cached(key store.Key, e store.Entry, state State, reason string) Snapshot {
	s := Snapshot{
		Key:       key,
		Payload:   e.Payload,
		Source:    SourceCache,
		FetchedAt: e.FetchedAt,
		State:     state,
		Reason:    reason,
		LastError: e.LastError,
	}
	if e.Status == store.StatusError {
		s.NextRetryAt = e.NextRetryAt
	}
	return s
}

func (m *Manager) windowView(ctx context.Context, payload []byte, hours int) *fixtures.Selection {
	ms, err := fixtures.Decode(payload)
	if err != nil {
		m.logger.Warn("decoding fixtures for window", "err", err)
		ms = nil
	}
	opts := m.cfg.Window
	opts.Hours = hours
	ms = m.logoIndex(ctx).Enrich(fixtures.Dedupe(fixtures.FilterLeagues(ms, m.cfg.Leagues)))
	sel := fixtures.Select(ms, m.cal.Now(), opts)
	return &sel
}
