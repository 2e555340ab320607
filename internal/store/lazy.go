package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fixturegate/fixturegate/internal/calendar"
)

var errClosed = errors.New("store closed")

// reconnectEvery spaces out open attempts against a primary that is down.
const reconnectEvery = 5 * time.Second

// lazyBackend stands in for a shared backend that could not be opened at
// startup. Every call retries the open, at most once per reconnectEvery,
// and fails with ErrUnavailable until it succeeds.
type lazyBackend struct {
	name string
	open func(ctx context.Context) (Backend, error)
	now  func() time.Time

	mu       sync.Mutex
	backend  Backend
	lastErr  error
	lastTry  time.Time
	isClosed bool
}

func newLazy(name string, open func(ctx context.Context) (Backend, error), initErr error) *lazyBackend {
	return &lazyBackend{name: name, open: open, now: time.Now, lastErr: initErr, lastTry: time.Now()}
}

func (l *lazyBackend) get(ctx context.Context) (Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend != nil {
		return l.backend, nil
	}
	if l.isClosed {
		return nil, unavailable("open "+l.name, errClosed)
	}
	if l.now().Sub(l.lastTry) < reconnectEvery {
		return nil, unavailable("open "+l.name, l.lastErr)
	}
	l.lastTry = l.now()
	b, err := l.open(ctx)
	if err != nil {
		l.lastErr = err
		return nil, unavailable("open "+l.name, err)
	}
	l.backend = b
	return b, nil
}

func (l *lazyBackend) Name() string { return l.name }

func (l *lazyBackend) Ping(ctx context.Context) error {
	b, err := l.get(ctx)
	if err != nil {
		return err
	}
	return b.Ping(ctx)
}

func (l *lazyBackend) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.isClosed = true
	if l.backend == nil {
		return nil
	}
	return l.backend.Close()
}

func (l *lazyBackend) Get(ctx context.Context, key Key) (Entry, error) {
	b, err := l.get(ctx)
	if err != nil {
		return Entry{}, err
	}
	return b.Get(ctx, key)
}

func (l *lazyBackend) Put(ctx context.Context, key Key, entry Entry) error {
	b, err := l.get(ctx)
	if err != nil {
		return err
	}
	return b.Put(ctx, key, entry)
}

func (l *lazyBackend) Reserve(ctx context.Context, day calendar.Date, maxCalls, limit int) (ReserveResult, error) {
	b, err := l.get(ctx)
	if err != nil {
		return ReserveResult{}, err
	}
	return b.Reserve(ctx, day, maxCalls, limit)
}

func (l *lazyBackend) Lock(ctx context.Context, day calendar.Date, maxCalls int) error {
	b, err := l.get(ctx)
	if err != nil {
		return err
	}
	return b.Lock(ctx, day, maxCalls)
}

func (l *lazyBackend) Counter(ctx context.Context, day calendar.Date, maxCalls int) (QuotaCounter, error) {
	b, err := l.get(ctx)
	if err != nil {
		return QuotaCounter{}, err
	}
	return b.Counter(ctx, day, maxCalls)
}

func (l *lazyBackend) Peek(ctx context.Context, key Key) (*FetchRecord, error) {
	b, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return b.Peek(ctx, key)
}

func (l *lazyBackend) Claim(ctx context.Context, req ClaimRequest) (bool, *FetchRecord, error) {
	b, err := l.get(ctx)
	if err != nil {
		return false, nil, err
	}
	return b.Claim(ctx, req)
}

func (l *lazyBackend) Release(ctx context.Context, key Key, claimID string, prev *FetchRecord) error {
	b, err := l.get(ctx)
	if err != nil {
		return err
	}
	return b.Release(ctx, key, claimID, prev)
}

func (l *lazyBackend) Complete(ctx context.Context, key Key, claimID string, outcome Outcome, retryAt time.Time) error {
	b, err := l.get(ctx)
	if err != nil {
		return err
	}
	return b.Complete(ctx, key, claimID, outcome, retryAt)
}
