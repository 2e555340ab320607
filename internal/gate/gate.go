// Package gate is the single authority deciding whether an upstream call
// may be made for a key right now.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/fixturegate/fixturegate/internal/calendar"
	"github.com/fixturegate/fixturegate/internal/quota"
	"github.com/fixturegate/fixturegate/internal/store"
)

// Reason explains a denial. None of them is a request failure.
type Reason string

const (
	ReasonScopeViolation   Reason = "scope_violation"
	ReasonAlreadyAttempted Reason = "already_attempted_today"
	ReasonInFlight         Reason = "in_flight"
	ReasonThrottled        Reason = "throttled"
	ReasonBudgetExhausted  Reason = "budget_exhausted"
	ReasonLocked           Reason = "locked"
	ReasonStoreUnavailable Reason = "store_unavailable"
)

// Request asks for one upstream call for Key. Stale marks a refresh of an
// entry that can still be served.
type Request struct {
	Key   store.Key
	Stale bool
}

// Decision describes the outcome of Authorize. Reason is empty when a
// permit was issued.
type Decision struct {
	Reason Reason
	// RetryAfter is set for ReasonThrottled.
	RetryAfter time.Duration
	// Err carries the underlying cause for scope and store denials.
	Err error
}

func (d Decision) Allowed() bool { return d.Reason == "" }

type Config struct {
	// MinInterval is the process-wide cooldown between upstream calls.
	// Zero disables it.
	MinInterval time.Duration
	// SingleFetch allows at most one attempt per key per day, apart from
	// transient failures whose retry window has opened.
	SingleFetch bool
	// Lease bounds how long a pending claim blocks others when SingleFetch
	// is off.
	Lease time.Duration
}

type Gate struct {
	claims  store.Claims
	ledger  *quota.Ledger
	cal     *calendar.Calendar
	limiter *rate.Limiter

	singleFetch bool
	lease       time.Duration
	logger      *log.Logger
	newID       func() string
}

func New(claims store.Claims, ledger *quota.Ledger, cal *calendar.Calendar, cfg Config, logger *log.Logger) *Gate {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Gate{
		claims:      claims,
		ledger:      ledger,
		cal:         cal,
		limiter:     rate.NewLimiter(limit, 1),
		singleFetch: cfg.SingleFetch,
		lease:       cfg.Lease,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// Authorize runs the checks cheapest first: scope, the day's fetch record,
// the cooldown, the atomic claim and finally the budget reservation. A
// denial leaves no trace: a claim taken before a budget denial is released
// and the cooldown token is handed back.
func (g *Gate) Authorize(ctx context.Context, req Request) (*Permit, Decision) {
	if err := g.cal.Scope(req.Key.Date); err != nil {
		return nil, Decision{Reason: ReasonScopeViolation, Err: err}
	}

	now := g.cal.Now()
	claim := store.ClaimRequest{
		Key:         req.Key,
		Day:         g.cal.Today(),
		Now:         now,
		SingleFetch: g.singleFetch,
		Lease:       g.lease,
	}

	cur, err := g.claims.Peek(ctx, req.Key)
	if err != nil {
		return nil, Decision{Reason: ReasonStoreUnavailable, Err: err}
	}
	if !claim.Claimable(cur) {
		return nil, Decision{Reason: g.attemptedReason(cur)}
	}

	cooldown := g.limiter.ReserveN(now, 1)
	if !cooldown.OK() {
		return nil, Decision{Reason: ReasonThrottled}
	}
	if wait := cooldown.DelayFrom(now); wait > 0 {
		cooldown.CancelAt(now)
		return nil, Decision{Reason: ReasonThrottled, RetryAfter: wait}
	}

	claim.ClaimID = g.newID()
	claimed, prev, err := g.claims.Claim(ctx, claim)
	if err != nil {
		cooldown.CancelAt(now)
		return nil, Decision{Reason: ReasonStoreUnavailable, Err: err}
	}
	if !claimed {
		cooldown.CancelAt(now)
		return nil, Decision{Reason: g.attemptedReason(prev)}
	}

	d, err := g.ledger.TryReserve(ctx, quota.Reservation{Stale: req.Stale})
	if !d.Reserved {
		if rerr := g.claims.Release(ctx, req.Key, claim.ClaimID, prev); rerr != nil {
			g.logger.Error("releasing fetch claim", "key", req.Key.String(), "err", rerr)
		}
		cooldown.CancelAt(now)
		return nil, Decision{Reason: Reason(d.Reason), Err: err}
	}

	g.logger.Debug("upstream call authorized", "key", req.Key.String(), "calls_made", d.Counter.CallsMade, "max_calls", d.Counter.MaxCalls)
	return &Permit{gate: g, key: req.Key, claimID: claim.ClaimID, Counter: d.Counter}, Decision{}
}

func (g *Gate) attemptedReason(cur *store.FetchRecord) Reason {
	if !g.singleFetch && cur != nil && cur.Outcome == store.OutcomePending {
		return ReasonInFlight
	}
	return ReasonAlreadyAttempted
}

// Permit authorizes exactly one upstream call. The holder must report the
// outcome with Complete.
type Permit struct {
	gate    *Gate
	key     store.Key
	claimID string
	done    bool

	// Counter is today's ledger row after the reservation.
	Counter store.QuotaCounter
}

func (p *Permit) Key() store.Key { return p.key }

// Complete settles the claim. retryAt is when a transient failure may be
// retried; it is ignored for other outcomes. Calling Complete twice is a
// no-op.
func (p *Permit) Complete(ctx context.Context, outcome store.Outcome, retryAt time.Time) error {
	if p.done {
		return nil
	}
	if outcome == store.OutcomePending {
		return errors.New("permit completed with pending outcome")
	}
	if outcome != store.OutcomeTransient {
		retryAt = time.Time{}
	}
	p.done = true
	if err := p.gate.claims.Complete(ctx, p.key, p.claimID, outcome, retryAt); err != nil {
		return fmt.Errorf("settling fetch record %s: %w", p.key, err)
	}
	return nil
}
