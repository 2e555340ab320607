// Package store persists snapshot entries, the daily quota counter and the
// per-key fetch records. Backends: Postgres (shared), SQLite (shared on one
// host) and JSON files (single instance).
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fixturegate/fixturegate/internal/calendar"
)

var (
	// ErrNotFound is returned when no entry exists for a key.
	ErrNotFound = errors.New("snapshot not found")
	// ErrUnavailable wraps backend failures (connection, IO, corrupt state).
	ErrUnavailable = errors.New("store unavailable")
)

type Kind string

const (
	KindFixtures  Kind = "fixtures"
	KindStandings Kind = "standings"
	KindLogos     Kind = "logos"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindFixtures, KindStandings, KindLogos:
		return k, nil
	default:
		return "", fmt.Errorf("unknown kind %q (want fixtures, standings or logos)", s)
	}
}

// Key identifies one snapshot. League is zero for fixtures and required for
// standings and logos, which the provider scopes by league and season.
type Key struct {
	Kind   Kind          `json:"kind"`
	Date   calendar.Date `json:"date"`
	League int           `json:"league,omitempty"`
}

func (k Key) String() string {
	if k.League != 0 {
		return fmt.Sprintf("%s/%s/%d", k.Kind, k.Date, k.League)
	}
	return fmt.Sprintf("%s/%s", k.Kind, k.Date)
}

// Validate checks the kind/league combination.
func (k Key) Validate() error {
	if _, err := ParseKind(string(k.Kind)); err != nil {
		return err
	}
	if k.Date.IsZero() {
		return errors.New("key has no date")
	}
	if k.Kind != KindFixtures && k.League <= 0 {
		return fmt.Errorf("%s requires a league id", k.Kind)
	}
	if k.League < 0 {
		return fmt.Errorf("invalid league id %d", k.League)
	}
	return nil
}

// ParseKey parses the String form.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Key{}, fmt.Errorf("invalid key %q", s)
	}
	kind, err := ParseKind(parts[0])
	if err != nil {
		return Key{}, err
	}
	date, err := calendar.ParseDate(parts[1])
	if err != nil {
		return Key{}, err
	}
	k := Key{Kind: kind, Date: date}
	if len(parts) == 3 {
		league, err := strconv.Atoi(parts[2])
		if err != nil {
			return Key{}, fmt.Errorf("invalid league in key %q: %w", s, err)
		}
		k.League = league
	}
	return k, k.Validate()
}

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Entry is one stored snapshot. Payload holds the provider response bytes
// as received; it is empty when every attempt so far has failed.
type Entry struct {
	Payload     []byte    `json:"payload,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
	Status      Status    `json:"status"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Source      string    `json:"source,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (e Entry) HasPayload() bool { return len(e.Payload) > 0 }

// QuotaCounter is the per-day upstream call ledger row.
type QuotaCounter struct {
	Day       calendar.Date `json:"date"`
	CallsMade int           `json:"calls_made"`
	MaxCalls  int           `json:"max_calls"`
	Locked    bool          `json:"locked"`
}

// ReserveResult reports the outcome of an atomic reservation attempt.
type ReserveResult struct {
	Reserved bool
	Counter  QuotaCounter
}

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSuccess   Outcome = "success"
	OutcomeFatal     Outcome = "fatal"
	OutcomeLimited   Outcome = "limited"
	OutcomeTransient Outcome = "transient"
)

// FetchRecord marks that an upstream fetch was attempted for Key on Day.
type FetchRecord struct {
	Key       Key           `json:"key"`
	Day       calendar.Date `json:"day"`
	ClaimID   string        `json:"claim_id"`
	ClaimedAt time.Time     `json:"claimed_at"`
	Outcome   Outcome       `json:"outcome"`
	RetryAt   time.Time     `json:"retry_at,omitempty"`
}

// ClaimRequest is evaluated atomically against the current record for Key.
// The claim succeeds when there is no record, the record belongs to an
// earlier day, a transient failure's retry window has opened, or (with
// SingleFetch off) the record is settled or its pending lease has expired.
type ClaimRequest struct {
	Key         Key
	Day         calendar.Date
	ClaimID     string
	Now         time.Time
	SingleFetch bool
	Lease       time.Duration
}

// Claimable applies the ClaimRequest rules to the current record. Backends
// that cannot express the rule in SQL evaluate it under their own lock.
func (r ClaimRequest) Claimable(cur *FetchRecord) bool {
	if cur == nil || cur.Day != r.Day {
		return true
	}
	if cur.Outcome == OutcomeTransient && !r.Now.Before(cur.RetryAt) {
		return true
	}
	if r.SingleFetch {
		return false
	}
	if cur.Outcome != OutcomePending {
		return true
	}
	return r.Lease > 0 && !r.Now.Before(cur.ClaimedAt.Add(r.Lease))
}

// Record returns the record written by a successful claim.
func (r ClaimRequest) Record() FetchRecord {
	return FetchRecord{Key: r.Key, Day: r.Day, ClaimID: r.ClaimID, ClaimedAt: r.Now, Outcome: OutcomePending}
}

// Snapshots stores entries. Put is last-write-wins by FetchedAt: an entry
// older than the stored one is dropped.
type Snapshots interface {
	Get(ctx context.Context, key Key) (Entry, error)
	Put(ctx context.Context, key Key, entry Entry) error
}

// Ledger stores per-day quota counters. Reserve increments CallsMade by one
// iff the day is unlocked and CallsMade < limit; limit may be below
// maxCalls to hold calls back. The check and the increment are one step.
type Ledger interface {
	Reserve(ctx context.Context, day calendar.Date, maxCalls, limit int) (ReserveResult, error)
	Lock(ctx context.Context, day calendar.Date, maxCalls int) error
	Counter(ctx context.Context, day calendar.Date, maxCalls int) (QuotaCounter, error)
}

// Claims stores fetch records. Claim is a compare-and-swap; Release undoes
// a claim that was not followed by a fetch (restoring prev); Complete
// settles a pending claim owned by record.ClaimID.
type Claims interface {
	Peek(ctx context.Context, key Key) (*FetchRecord, error)
	Claim(ctx context.Context, req ClaimRequest) (claimed bool, prev *FetchRecord, err error)
	Release(ctx context.Context, key Key, claimID string, prev *FetchRecord) error
	Complete(ctx context.Context, key Key, claimID string, outcome Outcome, retryAt time.Time) error
}

// Backend is a complete store.
type Backend interface {
	Snapshots
	Ledger
	Claims
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
