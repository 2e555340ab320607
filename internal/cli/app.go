package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/fixturegate/fixturegate/internal/calendar"
	"github.com/fixturegate/fixturegate/internal/config"
	"github.com/fixturegate/fixturegate/internal/fixtures"
	"github.com/fixturegate/fixturegate/internal/gate"
	"github.com/fixturegate/fixturegate/internal/metrics"
	"github.com/fixturegate/fixturegate/internal/quota"
	"github.com/fixturegate/fixturegate/internal/snapshot"
	"github.com/fixturegate/fixturegate/internal/store"
	"github.com/fixturegate/fixturegate/internal/upstream"
	"github.com/fixturegate/fixturegate/internal/warm"
)

// clock is the time source for every command. Tests replace it.
var clock clockwork.Clock = clockwork.NewRealClock()

// app is the wired service graph shared by the commands.
type app struct {
	cfg     config.Config
	store   store.Backend
	cal     *calendar.Calendar
	ledger  *quota.Ledger
	metrics *metrics.Metrics
	manager *snapshot.Manager
	warmer  *warm.Warmer
}

func openApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	cal := calendar.New(clock, loc, cfg.Cache.AllowTomorrow)

	backend, err := store.Open(ctx, store.Options{
		DatabaseURL:   cfg.Cache.DatabaseURL,
		CacheDir:      config.CacheDir(),
		LocalFallback: cfg.Cache.LocalFallback,
		Logger:        logger.WithPrefix("store"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	logger.Debug("store opened", "backend", backend.Name())

	m := metrics.New()
	ledger := quota.New(backend, cal, cfg.Quota.MaxDailyCalls, cfg.Quota.StaleRefreshReserve)
	g := gate.New(backend, ledger, cal, gate.Config{
		MinInterval: cfg.MinInterval(),
		SingleFetch: cfg.Cache.SingleFetchPerDate,
		Lease:       leaseFor(cfg.Timeout()),
	}, logger.WithPrefix("gate"))

	client := upstream.New(upstream.Config{
		BaseURL:       cfg.Upstream.BaseURL,
		APIKey:        cfg.Upstream.APIKey,
		Timeout:       cfg.Timeout(),
		Timezone:      cfg.Cache.Timezone,
		Leagues:       cfg.Upstream.Leagues,
		FilterLeagues: cfg.Upstream.FilterTargetLeagues,
	})

	var leagues []int
	if cfg.Upstream.FilterTargetLeagues {
		leagues = cfg.Upstream.Leagues
	}
	mgr := snapshot.New(snapshot.Deps{
		Store:   backend,
		Gate:    g,
		Ledger:  ledger,
		Fetcher: client,
		Cal:     cal,
		Metrics: m,
		Logger:  logger.WithPrefix("snapshot"),
	}, snapshot.Config{
		TTL:            cfg.TTL(),
		ErrorRetry:     cfg.ErrorRetry(),
		TransientRetry: cfg.TransientRetry(),
		RefreshTimeout: 2*cfg.Timeout() + 5*time.Second,
		Leagues:        leagues,
		LogoLeagues:    cfg.Upstream.Leagues,
		Window: fixtures.WindowOptions{
			Hours:          cfg.Window.Hours,
			MinMatches:     cfg.Window.MinMatches,
			ExtensionHours: cfg.Window.ExtensionHours,
		},
	})

	return &app{
		cfg:     cfg,
		store:   backend,
		cal:     cal,
		ledger:  ledger,
		metrics: m,
		manager: mgr,
		warmer:  warm.New(mgr, cal, cfg.Upstream.Leagues, logger.WithPrefix("warm")),
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

// leaseFor bounds how long an unfinished claim blocks other instances.
func leaseFor(timeout time.Duration) time.Duration {
	return max(time.Minute, 2*timeout)
}
