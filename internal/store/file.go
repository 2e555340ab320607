package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fixturegate/fixturegate/internal/calendar"
)

// FileBackend keeps everything in memory and writes it through to JSON files
// under dir. It is not safe to share dir between processes. An empty dir
// keeps state in memory only.
type FileBackend struct {
	dir string

	mu        sync.RWMutex
	snapshots map[Key]Entry
	quota     map[calendar.Date]QuotaCounter
	fetches   map[Key]FetchRecord
}

type snapshotFile struct {
	Key   Key   `json:"key"`
	Entry Entry `json:"entry"`
}

// OpenFile loads any state previously written under dir.
func OpenFile(dir string) (*FileBackend, error) {
	b := &FileBackend{
		dir:       dir,
		snapshots: make(map[Key]Entry),
		quota:     make(map[calendar.Date]QuotaCounter),
		fetches:   make(map[Key]FetchRecord),
	}
	if dir == "" {
		return b, nil
	}
	if err := os.MkdirAll(b.snapshotsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("opening file store: %w", err)
	}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileBackend) Name() string {
	if b.dir == "" {
		return "memory"
	}
	return "file"
}

func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) Ping(context.Context) error { return nil }

func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) snapshotsDir() string { return filepath.Join(b.dir, "snapshots") }
func (b *FileBackend) quotaPath() string     { return filepath.Join(b.dir, "quota.json") }
func (b *FileBackend) fetchesPath() string   { return filepath.Join(b.dir, "fetches.json") }

func (b *FileBackend) snapshotPath(key Key) string {
	name := strings.ReplaceAll(key.String(), "/", "_") + ".json"
	return filepath.Join(b.snapshotsDir(), name)
}

func (b *FileBackend) load() error {
	entries, err := os.ReadDir(b.snapshotsDir())
	if err != nil {
		return fmt.Errorf("loading file store: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var sf snapshotFile
		if readJSON(filepath.Join(b.snapshotsDir(), e.Name()), &sf) != nil {
			continue
		}
		if sf.Key.Validate() != nil {
			continue
		}
		b.snapshots[sf.Key] = sf.Entry
	}

	var counters []QuotaCounter
	if err := readJSON(b.quotaPath(), &counters); err == nil {
		for _, c := range counters {
			b.quota[c.Day] = c
		}
	}

	var records []FetchRecord
	if err := readJSON(b.fetchesPath(), &records); err == nil {
		for _, r := range records {
			b.fetches[r.Key] = r
		}
	}
	return nil
}

func (b *FileBackend) Get(_ context.Context, key Key) (Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.snapshots[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.Payload = append([]byte(nil), e.Payload...)
	return e, nil
}

func (b *FileBackend) Put(_ context.Context, key Key, entry Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.snapshots[key]; ok && entry.FetchedAt.Before(cur.FetchedAt) {
		return nil
	}
	entry.Payload = append([]byte(nil), entry.Payload...)
	b.snapshots[key] = entry
	if b.dir == "" {
		return nil
	}
	if err := writeJSON(b.snapshotPath(key), snapshotFile{Key: key, Entry: entry}); err != nil {
		return unavailable("writing snapshot "+key.String(), err)
	}
	return nil
}

func (b *FileBackend) Reserve(_ context.Context, day calendar.Date, maxCalls, limit int) (ReserveResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.counterLocked(day, maxCalls)
	if c.Locked || c.CallsMade >= limit || c.CallsMade >= maxCalls {
		return ReserveResult{Reserved: false, Counter: c}, nil
	}
	c.CallsMade++
	b.quota[day] = c
	if err := b.saveQuotaLocked(); err != nil {
		return ReserveResult{Counter: c}, err
	}
	return ReserveResult{Reserved: true, Counter: c}, nil
}

func (b *FileBackend) Lock(_ context.Context, day calendar.Date, maxCalls int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.counterLocked(day, maxCalls)
	if c.Locked {
		return nil
	}
	c.Locked = true
	b.quota[day] = c
	return b.saveQuotaLocked()
}

func (b *FileBackend) Counter(_ context.Context, day calendar.Date, maxCalls int) (QuotaCounter, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.quota[day]
	if !ok {
		return QuotaCounter{Day: day, MaxCalls: maxCalls}, nil
	}
	c.MaxCalls = maxCalls
	return c, nil
}

func (b *FileBackend) counterLocked(day calendar.Date, maxCalls int) QuotaCounter {
	c, ok := b.quota[day]
	if !ok {
		c = QuotaCounter{Day: day}
	}
	c.MaxCalls = maxCalls
	return c
}

func (b *FileBackend) saveQuotaLocked() error {
	if b.dir == "" {
		return nil
	}
	counters := make([]QuotaCounter, 0, len(b.quota))
	for _, c := range b.quota {
		counters = append(counters, c)
	}
	if err := writeJSON(b.quotaPath(), counters); err != nil {
		return unavailable("writing quota", err)
	}
	return nil
}

func (b *FileBackend) Peek(_ context.Context, key Key) (*FetchRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.fetches[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (b *FileBackend) Claim(_ context.Context, req ClaimRequest) (bool, *FetchRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var prev *FetchRecord
	if r, ok := b.fetches[req.Key]; ok {
		prev = &r
	}
	if !req.Claimable(prev) {
		return false, prev, nil
	}
	b.fetches[req.Key] = req.Record()
	if err := b.saveFetchesLocked(); err != nil {
		b.restoreLocked(req.Key, prev)
		return false, prev, err
	}
	return true, prev, nil
}

func (b *FileBackend) Release(_ context.Context, key Key, claimID string, prev *FetchRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.fetches[key]
	if !ok || cur.ClaimID != claimID || cur.Outcome != OutcomePending {
		return nil
	}
	b.restoreLocked(key, prev)
	return b.saveFetchesLocked()
}

func (b *FileBackend) Complete(_ context.Context, key Key, claimID string, outcome Outcome, retryAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.fetches[key]
	if !ok || cur.ClaimID != claimID {
		return nil
	}
	cur.Outcome = outcome
	cur.RetryAt = retryAt
	b.fetches[key] = cur
	return b.saveFetchesLocked()
}

func (b *FileBackend) restoreLocked(key Key, prev *FetchRecord) {
	if prev == nil {
		delete(b.fetches, key)
		return
	}
	b.fetches[key] = *prev
}

func (b *FileBackend) saveFetchesLocked() error {
	if b.dir == "" {
		return nil
	}
	records := make([]FetchRecord, 0, len(b.fetches))
	for _, r := range b.fetches {
		records = append(records, r)
	}
	if err := writeJSON(b.fetchesPath(), records); err != nil {
		return unavailable("writing fetch records", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON replaces path atomically so a crash never leaves a torn file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
