package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// Options selects and configures a backend.
type Options struct {
	// DatabaseURL picks the shared backend: postgres:// or postgresql://
	// for Postgres, sqlite://path or a path ending in .db for SQLite.
	// Empty means the file backend under CacheDir.
	DatabaseURL string
	CacheDir    string
	// LocalFallback wraps a shared backend with a file backend under
	// CacheDir for snapshot reads.
	LocalFallback bool
	Logger        *log.Logger
}

// Open returns the backend described by opts.
func Open(ctx context.Context, opts Options) (Backend, error) {
	url := strings.TrimSpace(opts.DatabaseURL)

	var name string
	var open func(ctx context.Context) (Backend, error)
	switch {
	case url == "":
		return OpenFile(opts.CacheDir)
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		name = "postgres"
		open = func(ctx context.Context) (Backend, error) { return OpenPostgres(ctx, url) }
	case strings.HasPrefix(url, "sqlite://"):
		name = "sqlite"
		open = func(ctx context.Context) (Backend, error) { return OpenSQLite(ctx, strings.TrimPrefix(url, "sqlite://")) }
	case strings.HasSuffix(url, ".db"), strings.HasSuffix(url, ".sqlite"):
		name = "sqlite"
		open = func(ctx context.Context) (Backend, error) { return OpenSQLite(ctx, url) }
	default:
		return nil, fmt.Errorf("unsupported database url %q", Redact(url))
	}

	fallback := opts.LocalFallback && opts.CacheDir != ""
	primary, err := open(ctx)
	switch {
	case err == nil:
	case fallback && errors.Is(err, ErrUnavailable):
		// Serve local reads now and keep retrying the shared store.
		if opts.Logger != nil {
			opts.Logger.Warn("shared store unreachable, starting on local fallback", "backend", name, "err", err)
		}
		primary = newLazy(name, open, err)
	default:
		return nil, err
	}

	if !fallback {
		return primary, nil
	}
	local, err := OpenFile(filepath.Join(opts.CacheDir, "fallback"))
	if err != nil {
		_ = primary.Close()
		return nil, err
	}
	return NewFallback(primary, local, opts.Logger), nil
}

// Redact drops credentials from a connection string for error messages.
func Redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
