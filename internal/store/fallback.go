package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fixturegate/fixturegate/internal/calendar"
)

// Fallback serves snapshot reads from a local backend when the shared
// primary is unreachable, and mirrors snapshot writes to it. Quota and
// claim operations always go to the primary; they fail closed rather than
// splitting the budget across instances.
type Fallback struct {
	primary Backend
	local   Backend
	logger  *log.Logger
}

func NewFallback(primary, local Backend, logger *log.Logger) *Fallback {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Fallback{primary: primary, local: local, logger: logger}
}

func (f *Fallback) Name() string { return f.primary.Name() + "+" + f.local.Name() }

func (f *Fallback) Ping(ctx context.Context) error { return f.primary.Ping(ctx) }

func (f *Fallback) Close() error {
	return errors.Join(f.primary.Close(), f.local.Close())
}

func (f *Fallback) Get(ctx context.Context, key Key) (Entry, error) {
	e, err := f.primary.Get(ctx, key)
	if err == nil || !errors.Is(err, ErrUnavailable) {
		return e, err
	}
	f.logger.Warn("shared store unavailable, reading local copy", "key", key.String(), "err", err)
	le, lerr := f.local.Get(ctx, key)
	if lerr != nil {
		if errors.Is(lerr, ErrNotFound) {
			return Entry{}, err
		}
		return Entry{}, errors.Join(err, lerr)
	}
	return le, nil
}

func (f *Fallback) Put(ctx context.Context, key Key, entry Entry) error {
	err := f.primary.Put(ctx, key, entry)
	if lerr := f.local.Put(ctx, key, entry); lerr != nil {
		f.logger.Warn("mirroring snapshot locally failed", "key", key.String(), "err", lerr)
	}
	return err
}

func (f *Fallback) Reserve(ctx context.Context, day calendar.Date, maxCalls, limit int) (ReserveResult, error) {
	return f.primary.Reserve(ctx, day, maxCalls, limit)
}

func (f *Fallback) Lock(ctx context.Context, day calendar.Date, maxCalls int) error {
	return f.primary.Lock(ctx, day, maxCalls)
}

func (f *Fallback) Counter(ctx context.Context, day calendar.Date, maxCalls int) (QuotaCounter, error) {
	return f.primary.Counter(ctx, day, maxCalls)
}

func (f *Fallback) Peek(ctx context.Context, key Key) (*FetchRecord, error) {
	return f.primary.Peek(ctx, key)
}

func (f *Fallback) Claim(ctx context.Context, req ClaimRequest) (bool, *FetchRecord, error) {
	return f.primary.Claim(ctx, req)
}

func (f *Fallback) Release(ctx context.Context, key Key, claimID string, prev *FetchRecord) error {
	return f.primary.Release(ctx, key, claimID, prev)
}

func (f *Fallback) Complete(ctx context.Context, key Key, claimID string, outcome Outcome, retryAt time.Time) error {
	return f.primary.Complete(ctx, key, claimID, outcome, retryAt)
}
