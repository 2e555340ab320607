package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixturegate/fixturegate/internal/calendar"
)

// PostgresBackend is the shared store used when several instances serve the
// same provider account.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fixturegate_snapshots (
	kind          TEXT        NOT NULL,
	date          TEXT        NOT NULL,
	league        INTEGER     NOT NULL DEFAULT 0,
	payload       BYTEA,
	fetched_at    TIMESTAMPTZ NOT NULL,
	status        TEXT        NOT NULL,
	next_retry_at TIMESTAMPTZ,
	last_error    TEXT        NOT NULL DEFAULT '',
	source        TEXT        NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, date, league)
);
CREATE TABLE IF NOT EXISTS fixturegate_quota (
	day        TEXT    PRIMARY KEY,
	calls_made INTEGER NOT NULL DEFAULT 0,
	locked     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS fixturegate_fetches (
	kind       TEXT        NOT NULL,
	date       TEXT        NOT NULL,
	league     INTEGER     NOT NULL DEFAULT 0,
	day        TEXT        NOT NULL,
	claim_id   TEXT        NOT NULL,
	claimed_at TIMESTAMPTZ NOT NULL,
	outcome    TEXT        NOT NULL,
	retry_at   TIMESTAMPTZ,
	PRIMARY KEY (kind, date, league)
);`

func OpenPostgres(ctx context.Context, url string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, unavailable("init postgres schema", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Name() string { return "postgres" }

func (p *PostgresBackend) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return unavailable("ping postgres", err)
	}
	return nil
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresBackend) Get(ctx context.Context, key Key) (Entry, error) {
	var e Entry
	var status string
	var nextRetry *time.Time
	err := p.pool.QueryRow(ctx, `
		SELECT payload, fetched_at, status, next_retry_at, last_error, source, updated_at
		FROM fixturegate_snapshots WHERE kind = $1 AND date = $2 AND league = $3`,
		string(key.Kind), key.Date.String(), key.League,
	).Scan(&e.Payload, &e.FetchedAt, &status, &nextRetry, &e.LastError, &e.Source, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, unavailable("reading snapshot "+key.String(), err)
	}
	e.Status = Status(status)
	e.NextRetryAt = derefTime(nextRetry)
	return e, nil
}

func (p *PostgresBackend) Put(ctx context.Context, key Key, entry Entry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO fixturegate_snapshots
			(kind, date, league, payload, fetched_at, status, next_retry_at, last_error, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (kind, date, league) DO UPDATE SET
			payload = EXCLUDED.payload,
			fetched_at = EXCLUDED.fetched_at,
			status = EXCLUDED.status,
			next_retry_at = EXCLUDED.next_retry_at,
			last_error = EXCLUDED.last_error,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at
		WHERE fixturegate_snapshots.fetched_at <= EXCLUDED.fetched_at`,
		string(key.Kind), key.Date.String(), key.League, entry.Payload, entry.FetchedAt,
		string(entry.Status), nullTime(entry.NextRetryAt), entry.LastError, entry.Source, entry.UpdatedAt,
	)
	if err != nil {
		return unavailable("writing snapshot "+key.String(), err)
	}
	return nil
}

func (p *PostgresBackend) Reserve(ctx context.Context, day calendar.Date, maxCalls, limit int) (ReserveResult, error) {
	if _, err := p.pool.Exec(ctx,
		`INSERT INTO fixturegate_quota (day) VALUES ($1) ON CONFLICT (day) DO NOTHING`, day.String()); err != nil {
		return ReserveResult{}, unavailable("reserving quota", err)
	}
	c := QuotaCounter{Day: day, MaxCalls: maxCalls}
	err := p.pool.QueryRow(ctx, `
		UPDATE fixturegate_quota SET calls_made = calls_made + 1
		WHERE day = $1 AND NOT locked AND calls_made < $2 AND calls_made < $3
		RETURNING calls_made, locked`, day.String(), limit, maxCalls,
	).Scan(&c.CallsMade, &c.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		c, err = p.Counter(ctx, day, maxCalls)
		return ReserveResult{Counter: c}, err
	}
	if err != nil {
		return ReserveResult{}, unavailable("reserving quota", err)
	}
	return ReserveResult{Reserved: true, Counter: c}, nil
}

func (p *PostgresBackend) Lock(ctx context.Context, day calendar.Date, _ int) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO fixturegate_quota (day, locked) VALUES ($1, TRUE)
		ON CONFLICT (day) DO UPDATE SET locked = TRUE`, day.String())
	if err != nil {
		return unavailable("locking quota", err)
	}
	return nil
}

func (p *PostgresBackend) Counter(ctx context.Context, day calendar.Date, maxCalls int) (QuotaCounter, error) {
	c := QuotaCounter{Day: day, MaxCalls: maxCalls}
	err := p.pool.QueryRow(ctx,
		`SELECT calls_made, locked FROM fixturegate_quota WHERE day = $1`, day.String(),
	).Scan(&c.CallsMade, &c.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return QuotaCounter{}, unavailable("reading quota", err)
	}
	return c, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *PostgresBackend) Peek(ctx context.Context, key Key) (*FetchRecord, error) {
	return peekFetch(ctx, p.pool, key, "")
}

func peekFetch(ctx context.Context, q rowQuerier, key Key, suffix string) (*FetchRecord, error) {
	r := FetchRecord{Key: key}
	var day, outcome string
	var retryAt *time.Time
	err := q.QueryRow(ctx, `
		SELECT day, claim_id, claimed_at, outcome, retry_at
		FROM fixturegate_fetches WHERE kind = $1 AND date = $2 AND league = $3`+suffix,
		string(key.Kind), key.Date.String(), key.League,
	).Scan(&day, &r.ClaimID, &r.ClaimedAt, &outcome, &retryAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("reading fetch record "+key.String(), err)
	}
	d, err := calendar.ParseDate(day)
	if err != nil {
		return nil, unavailable("reading fetch record "+key.String(), err)
	}
	r.Day = d
	r.Outcome = Outcome(outcome)
	r.RetryAt = derefTime(retryAt)
	return &r, nil
}

// Claim holds a row lock on the current record while the claim rules are
// applied. A missing record is claimed with an insert that loses to any
// concurrent insert.
func (p *PostgresBackend) Claim(ctx context.Context, req ClaimRequest) (bool, *FetchRecord, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, nil, unavailable("claiming "+req.Key.String(), err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prev, err := peekFetch(ctx, tx, req.Key, " FOR UPDATE")
	if err != nil {
		return false, nil, err
	}
	if !req.Claimable(prev) {
		return false, prev, nil
	}

	rec := req.Record()
	tag, err := tx.Exec(ctx, `
		INSERT INTO fixturegate_fetches (kind, date, league, day, claim_id, claimed_at, outcome, retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
		ON CONFLICT (kind, date, league) DO UPDATE SET
			day = EXCLUDED.day,
			claim_id = EXCLUDED.claim_id,
			claimed_at = EXCLUDED.claimed_at,
			outcome = EXCLUDED.outcome,
			retry_at = NULL
		WHERE $8`,
		string(rec.Key.Kind), rec.Key.Date.String(), rec.Key.League,
		rec.Day.String(), rec.ClaimID, rec.ClaimedAt, string(rec.Outcome), prev != nil)
	if err != nil {
		return false, prev, unavailable("claiming "+req.Key.String(), err)
	}
	if tag.RowsAffected() != 1 {
		return false, prev, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, prev, unavailable("claiming "+req.Key.String(), err)
	}
	return true, prev, nil
}

func (p *PostgresBackend) Release(ctx context.Context, key Key, claimID string, prev *FetchRecord) error {
	var err error
	if prev == nil {
		_, err = p.pool.Exec(ctx, `
			DELETE FROM fixturegate_fetches
			WHERE kind = $1 AND date = $2 AND league = $3 AND claim_id = $4 AND outcome = $5`,
			string(key.Kind), key.Date.String(), key.League, claimID, string(OutcomePending))
	} else {
		_, err = p.pool.Exec(ctx, `
			UPDATE fixturegate_fetches
			SET day = $1, claim_id = $2, claimed_at = $3, outcome = $4, retry_at = $5
			WHERE kind = $6 AND date = $7 AND league = $8 AND claim_id = $9 AND outcome = $10`,
			prev.Day.String(), prev.ClaimID, prev.ClaimedAt, string(prev.Outcome), nullTime(prev.RetryAt),
			string(key.Kind), key.Date.String(), key.League, claimID, string(OutcomePending))
	}
	if err != nil {
		return unavailable("releasing "+key.String(), err)
	}
	return nil
}

func (p *PostgresBackend) Complete(ctx context.Context, key Key, claimID string, outcome Outcome, retryAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE fixturegate_fetches SET outcome = $1, retry_at = $2
		WHERE kind = $3 AND date = $4 AND league = $5 AND claim_id = $6`,
		string(outcome), nullTime(retryAt), string(key.Kind), key.Date.String(), key.League, claimID)
	if err != nil {
		return unavailable("completing "+key.String(), err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
