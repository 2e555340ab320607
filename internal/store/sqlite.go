package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fixturegate/fixturegate/internal/calendar"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores state in a single SQLite file. Several processes on
// one host may share the file; the claim and reservation statements are
// single conditional writes.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS fixturegate_snapshots (
		kind          TEXT    NOT NULL,
		date          TEXT    NOT NULL,
		league        INTEGER NOT NULL DEFAULT 0,
		payload       BLOB,
		fetched_at    INTEGER NOT NULL,
		status        TEXT    NOT NULL,
		next_retry_at INTEGER NOT NULL DEFAULT 0,
		last_error    TEXT    NOT NULL DEFAULT '',
		source        TEXT    NOT NULL DEFAULT '',
		updated_at    INTEGER NOT NULL,
		PRIMARY KEY (kind, date, league)
	)`,
	`CREATE TABLE IF NOT EXISTS fixturegate_quota (
		day        TEXT    PRIMARY KEY,
		calls_made INTEGER NOT NULL DEFAULT 0,
		locked     INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS fixturegate_fetches (
		kind       TEXT    NOT NULL,
		date       TEXT    NOT NULL,
		league     INTEGER NOT NULL DEFAULT 0,
		day        TEXT    NOT NULL,
		claim_id   TEXT    NOT NULL,
		claimed_at INTEGER NOT NULL,
		outcome    TEXT    NOT NULL,
		retry_at   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (kind, date, league)
	)`,
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

func (s *SQLiteBackend) Name() string { return "sqlite" }

func (s *SQLiteBackend) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping sqlite", err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error { return s.db.Close() }

func (s *SQLiteBackend) Get(ctx context.Context, key Key) (Entry, error) {
	var e Entry
	var status string
	var fetched, nextRetry, updatedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, fetched_at, status, next_retry_at, last_error, source, updated_at
		FROM fixturegate_snapshots WHERE kind = ? AND date = ? AND league = ?`,
		string(key.Kind), key.Date.String(), key.League,
	).Scan(&e.Payload, &fetched, &status, &nextRetry, &e.LastError, &e.Source, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, unavailable("reading snapshot "+key.String(), err)
	}
	e.Status = Status(status)
	e.FetchedAt = fromNanos(fetched)
	e.NextRetryAt = fromNanos(nextRetry)
	e.UpdatedAt = fromNanos(updatedAt)
	return e, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, key Key, entry Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fixturegate_snapshots
			(kind, date, league, payload, fetched_at, status, next_retry_at, last_error, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, date, league) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at,
			status = excluded.status,
			next_retry_at = excluded.next_retry_at,
			last_error = excluded.last_error,
			source = excluded.source,
			updated_at = excluded.updated_at
		WHERE fixturegate_snapshots.fetched_at <= excluded.fetched_at`,
		string(key.Kind), key.Date.String(), key.League, entry.Payload,
		toNanos(entry.FetchedAt), string(entry.Status), toNanos(entry.NextRetryAt),
		entry.LastError, entry.Source, toNanos(entry.UpdatedAt),
	)
	if err != nil {
		return unavailable("writing snapshot "+key.String(), err)
	}
	return nil
}

func (s *SQLiteBackend) Reserve(ctx context.Context, day calendar.Date, maxCalls, limit int) (ReserveResult, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO fixturegate_quota (day) VALUES (?) ON CONFLICT (day) DO NOTHING`, day.String()); err != nil {
		return ReserveResult{}, unavailable("reserving quota", err)
	}
	var c QuotaCounter
	err := s.db.QueryRowContext(ctx, `
		UPDATE fixturegate_quota SET calls_made = calls_made + 1
		WHERE day = ? AND locked = 0 AND calls_made < ? AND calls_made < ?
		RETURNING calls_made, locked`, day.String(), limit, maxCalls,
	).Scan(&c.CallsMade, &c.Locked)
	if errors.Is(err, sql.ErrNoRows) {
		c, err = s.Counter(ctx, day, maxCalls)
		return ReserveResult{Counter: c}, err
	}
	if err != nil {
		return ReserveResult{}, unavailable("reserving quota", err)
	}
	c.Day = day
	c.MaxCalls = maxCalls
	return ReserveResult{Reserved: true, Counter: c}, nil
}

func (s *SQLiteBackend) Lock(ctx context.Context, day calendar.Date, _ int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fixturegate_quota (day, locked) VALUES (?, 1)
		ON CONFLICT (day) DO UPDATE SET locked = 1`, day.String())
	if err != nil {
		return unavailable("locking quota", err)
	}
	return nil
}

func (s *SQLiteBackend) Counter(ctx context.Context, day calendar.Date, maxCalls int) (QuotaCounter, error) {
	c := QuotaCounter{Day: day, MaxCalls: maxCalls}
	err := s.db.QueryRowContext(ctx,
		`SELECT calls_made, locked FROM fixturegate_quota WHERE day = ?`, day.String(),
	).Scan(&c.CallsMade, &c.Locked)
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return QuotaCounter{}, unavailable("reading quota", err)
	}
	return c, nil
}

func (s *SQLiteBackend) Peek(ctx context.Context, key Key) (*FetchRecord, error) {
	var (
		r                  FetchRecord
		day, outcome       string
		claimedAt, retryAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT day, claim_id, claimed_at, outcome, retry_at
		FROM fixturegate_fetches WHERE kind = ? AND date = ? AND league = ?`,
		string(key.Kind), key.Date.String(), key.League,
	).Scan(&day, &r.ClaimID, &claimedAt, &outcome, &retryAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("reading fetch record "+key.String(), err)
	}
	d, err := calendar.ParseDate(day)
	if err != nil {
		return nil, unavailable("reading fetch record "+key.String(), err)
	}
	r.Key = key
	r.Day = d
	r.Outcome = Outcome(outcome)
	r.ClaimedAt = fromNanos(claimedAt)
	r.RetryAt = fromNanos(retryAt)
	return &r, nil
}

// Claim reads the current record, applies the claim rules and then writes
// conditionally on the record being unchanged. A concurrent claimer that
// got there first makes the write affect no rows.
func (s *SQLiteBackend) Claim(ctx context.Context, req ClaimRequest) (bool, *FetchRecord, error) {
	prev, err := s.Peek(ctx, req.Key)
	if err != nil {
		return false, nil, err
	}
	if !req.Claimable(prev) {
		return false, prev, nil
	}
	rec := req.Record()
	var res sql.Result
	if prev == nil {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO fixturegate_fetches (kind, date, league, day, claim_id, claimed_at, outcome, retry_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT (kind, date, league) DO NOTHING`,
			string(rec.Key.Kind), rec.Key.Date.String(), rec.Key.League,
			rec.Day.String(), rec.ClaimID, toNanos(rec.ClaimedAt), string(rec.Outcome))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE fixturegate_fetches
			SET day = ?, claim_id = ?, claimed_at = ?, outcome = ?, retry_at = 0
			WHERE kind = ? AND date = ? AND league = ? AND claim_id = ? AND outcome = ?`,
			rec.Day.String(), rec.ClaimID, toNanos(rec.ClaimedAt), string(rec.Outcome),
			string(rec.Key.Kind), rec.Key.Date.String(), rec.Key.League, prev.ClaimID, string(prev.Outcome))
	}
	if err != nil {
		return false, prev, unavailable("claiming "+req.Key.String(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, prev, unavailable("claiming "+req.Key.String(), err)
	}
	return n == 1, prev, nil
}

func (s *SQLiteBackend) Release(ctx context.Context, key Key, claimID string, prev *FetchRecord) error {
	var err error
	if prev == nil {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM fixturegate_fetches
			WHERE kind = ? AND date = ? AND league = ? AND claim_id = ? AND outcome = ?`,
			string(key.Kind), key.Date.String(), key.League, claimID, string(OutcomePending))
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE fixturegate_fetches
			SET day = ?, claim_id = ?, claimed_at = ?, outcome = ?, retry_at = ?
			WHERE kind = ? AND date = ? AND league = ? AND claim_id = ? AND outcome = ?`,
			prev.Day.String(), prev.ClaimID, toNanos(prev.ClaimedAt), string(prev.Outcome), toNanos(prev.RetryAt),
			string(key.Kind), key.Date.String(), key.League, claimID, string(OutcomePending))
	}
	if err != nil {
		return unavailable("releasing "+key.String(), err)
	}
	return nil
}

func (s *SQLiteBackend) Complete(ctx context.Context, key Key, claimID string, outcome Outcome, retryAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE fixturegate_fetches SET outcome = ?, retry_at = ?
		WHERE kind = ? AND date = ? AND league = ? AND claim_id = ?`,
		string(outcome), toNanos(retryAt),
		string(key.Kind), key.Date.String(), key.League, claimID)
	if err != nil {
		return unavailable("completing "+key.String(), err)
	}
	return nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
