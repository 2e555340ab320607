// Package quota enforces the daily upstream call budget.
package quota

import (
	"context"
	"fmt"

	"github.com/fixturegate/fixturegate/internal/calendar"
	"github.com/fixturegate/fixturegate/internal/store"
)

// Reason explains a denied reservation.
type Reason string

const (
	ReasonBudgetExhausted  Reason = "budget_exhausted"
	ReasonLocked           Reason = "locked"
	ReasonStoreUnavailable Reason = "store_unavailable"
)

// Decision is the result of TryReserve.
type Decision struct {
	Reserved bool
	Reason   Reason
	Counter  store.QuotaCounter
}

// Reservation describes the caller. Stale refreshes are held back by the
// configured reserve so cache misses can still be served late in the day.
type Reservation struct {
	Stale bool
}

// Status is the observable state of today's counter.
type Status struct {
	Date      calendar.Date `json:"date"`
	CallsMade int           `json:"calls_made"`
	MaxCalls  int           `json:"max_calls"`
	Remaining int           `json:"remaining"`
	Locked    bool          `json:"locked"`
}

type Ledger struct {
	backend store.Ledger
	cal     *calendar.Calendar
	max     int
	reserve int
}

// New returns a ledger allowing maxCalls per day. staleReserve calls are
// kept back from stale refreshes; it is clamped to [0, maxCalls-1].
func New(backend store.Ledger, cal *calendar.Calendar, maxCalls, staleReserve int) *Ledger {
	if maxCalls < 1 {
		maxCalls = 1
	}
	staleReserve = max(0, min(staleReserve, maxCalls-1))
	return &Ledger{backend: backend, cal: cal, max: maxCalls, reserve: staleReserve}
}

func (l *Ledger) MaxCalls() int { return l.max }

// TryReserve atomically takes one call from today's budget. A backend
// failure denies with ReasonStoreUnavailable and returns the error.
func (l *Ledger) TryReserve(ctx context.Context, r Reservation) (Decision, error) {
	limit := l.max
	if r.Stale {
		limit -= l.reserve
	}
	res, err := l.backend.Reserve(ctx, l.cal.Today(), l.max, limit)
	if err != nil {
		return Decision{Reason: ReasonStoreUnavailable}, fmt.Errorf("reserving daily quota: %w", err)
	}
	if res.Reserved {
		return Decision{Reserved: true, Counter: res.Counter}, nil
	}
	if res.Counter.Locked {
		return Decision{Reason: ReasonLocked, Counter: res.Counter}, nil
	}
	return Decision{Reason: ReasonBudgetExhausted, Counter: res.Counter}, nil
}

// RecordDailyLimitSignal locks today's budget after the provider reported
// the account-wide limit. It is idempotent.
func (l *Ledger) RecordDailyLimitSignal(ctx context.Context) error {
	if err := l.backend.Lock(ctx, l.cal.Today(), l.max); err != nil {
		return fmt.Errorf("locking daily quota: %w", err)
	}
	return nil
}

func (l *Ledger) Status(ctx context.Context) (Status, error) {
	c, err := l.backend.Counter(ctx, l.cal.Today(), l.max)
	if err != nil {
		return Status{}, fmt.Errorf("reading daily quota: %w", err)
	}
	return Status{
		Date:      c.Day,
		CallsMade: c.CallsMade,
		MaxCalls:  l.max,
		Remaining: max(0, l.max-c.CallsMade),
		Locked:    c.Locked,
	}, nil
}
