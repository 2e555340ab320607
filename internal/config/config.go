package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

type UpstreamConfig struct {
	BaseURL             string  `toml:"base_url" json:"base_url"`
	APIKey              string  `toml:"api_key,omitempty" json:"-"`
	Timeout             float64 `toml:"timeout" json:"timeout"`
	Leagues             []int   `toml:"leagues" json:"leagues"`
	FilterTargetLeagues bool    `toml:"filter_target_leagues" json:"filter_target_leagues"`
}

type QuotaConfig struct {
	MaxDailyCalls       int     `toml:"max_daily_calls" json:"max_daily_calls"`
	MinRequestInterval  float64 `toml:"min_request_interval" json:"min_request_interval"`
	StaleRefreshReserve int     `toml:"stale_refresh_reserve" json:"stale_refresh_reserve"`
}

type CacheConfig struct {
	TTLMinutes            int    `toml:"ttl_minutes" json:"ttl_minutes"`
	ErrorRetryMinutes     int    `toml:"error_retry_minutes" json:"error_retry_minutes"`
	TransientRetryMinutes int    `toml:"transient_retry_minutes" json:"transient_retry_minutes"`
	SingleFetchPerDate    bool   `toml:"single_fetch_per_date" json:"single_fetch_per_date"`
	AllowTomorrow         bool   `toml:"allow_tomorrow" json:"allow_tomorrow"`
	Timezone              string `toml:"timezone" json:"timezone"`
	DatabaseURL           string `toml:"database_url,omitempty" json:"-"`
	LocalFallback         bool   `toml:"local_fallback" json:"local_fallback"`
}

type WindowConfig struct {
	Hours          int `toml:"hours" json:"hours"`
	MinMatches     int `toml:"min_matches" json:"min_matches"`
	ExtensionHours int `toml:"extension_hours" json:"extension_hours"`
}

type ServeConfig struct {
	Addr         string `toml:"addr" json:"addr"`
	WarmSchedule string `toml:"warm_schedule" json:"warm_schedule"`
	WarmOnStart  bool   `toml:"warm_on_start" json:"warm_on_start"`
}

type Config struct {
	Upstream UpstreamConfig `toml:"upstream" json:"upstream"`
	Quota    QuotaConfig    `toml:"quota" json:"quota"`
	Cache    CacheConfig    `toml:"cache" json:"cache"`
	Window   WindowConfig   `toml:"window" json:"window"`
	Serve    ServeConfig    `toml:"serve" json:"serve"`
}

// DefaultLeagues are the competitions warmed and kept after filtering:
// Champions League, Premier League, La Liga, Bundesliga and Serie A.
var DefaultLeagues = []int{2, 39, 140, 78, 135}

func DefaultConfig() Config {
	return Config{
		Upstream: UpstreamConfig{
			BaseURL:             "https://v3.football.api-sports.io",
			Timeout:             10.0,
			Leagues:             slices.Clone(DefaultLeagues),
			FilterTargetLeagues: true,
		},
		Quota: QuotaConfig{
			MaxDailyCalls:       25,
			MinRequestInterval:  1.0,
			StaleRefreshReserve: len(DefaultLeagues),
		},
		Cache: CacheConfig{
			TTLMinutes:            90,
			ErrorRetryMinutes:     30,
			TransientRetryMinutes: 5,
			SingleFetchPerDate:    true,
			AllowTomorrow:         true,
			Timezone:              "Local",
			LocalFallback:         true,
		},
		Window: WindowConfig{
			Hours:          20,
			MinMatches:     4,
			ExtensionHours: 4,
		},
		Serve: ServeConfig{
			Addr:         ":8080",
			WarmSchedule: "*/30 * * * *",
		},
	}
}

func (c Config) clone() Config {
	out := c
	out.Upstream.Leagues = slices.Clone(c.Upstream.Leagues)
	return out
}

// Location resolves the configured timezone. "Local" and "" mean the host zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Cache.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Cache.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Cache.Timezone, err)
	}
	return loc, nil
}

func (c Config) Timeout() time.Duration { return seconds(c.Upstream.Timeout) }

func (c Config) MinInterval() time.Duration { return seconds(c.Quota.MinRequestInterval) }

func (c Config) TTL() time.Duration { return time.Duration(c.Cache.TTLMinutes) * time.Minute }

func (c Config) ErrorRetry() time.Duration {
	return time.Duration(c.Cache.ErrorRetryMinutes) * time.Minute
}

func (c Config) TransientRetry() time.Duration {
	return time.Duration(c.Cache.TransientRetryMinutes) * time.Minute
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

var (
	globalConfig *Config
	configMu     sync.RWMutex
)

func Get() Config {
	configMu.RLock()
	if c := globalConfig; c != nil {
		configMu.RUnlock()
		return c.clone()
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()
	if globalConfig != nil {
		return globalConfig.clone()
	}
	c, _ := Load("")
	globalConfig = &c
	return c.clone()
}

func Reload() (Config, error) {
	configMu.Lock()
	defer configMu.Unlock()
	c, err := Load("")
	globalConfig = &c
	return c.clone(), err
}

func set(cfg Config) {
	configMu.Lock()
	defer configMu.Unlock()
	c := cfg.clone()
	globalConfig = &c
}

// Load reads the TOML file at path (ConfigFile when empty), then applies
// environment overrides and clamps. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = ConfigFile()
	}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return normalize(applyEnvOverrides(cfg)), nil
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return normalize(applyEnvOverrides(DefaultConfig())), fmt.Errorf("parsing config %s: %w", path, err)
	}

	return normalize(applyEnvOverrides(cfg)), nil
}

func Save(cfg Config, path string) error {
	if path == "" {
		path = ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv("API_SPORTS_KEY")); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v, ok := envFloat("REQUEST_TIMEOUT_SECONDS"); ok {
		cfg.Upstream.Timeout = v
	}
	if v, ok := envBool("FILTER_TARGET_LEAGUES"); ok {
		cfg.Upstream.FilterTargetLeagues = v
	}
	if v, ok := envInt("MAX_DAILY_API_CALLS"); ok {
		cfg.Quota.MaxDailyCalls = v
	}
	if v, ok := envFloat("MIN_REQUEST_INTERVAL_SECONDS"); ok {
		cfg.Quota.MinRequestInterval = v
	}
	if v, ok := envInt("FIXTURE_CACHE_REFRESH_MINUTES"); ok {
		cfg.Cache.TTLMinutes = v
	}
	if v, ok := envInt("FIXTURE_ERROR_RETRY_MINUTES"); ok {
		cfg.Cache.ErrorRetryMinutes = v
	}
	if v, ok := envBool("SINGLE_FETCH_PER_DATE_PER_DAY"); ok {
		cfg.Cache.SingleFetchPerDate = v
	}
	if v := strings.TrimSpace(os.Getenv("FIXTUREGATE_TIMEZONE")); v != "" {
		cfg.Cache.Timezone = v
	}
	if v := strings.TrimSpace(os.Getenv("CACHE_DATABASE_URL")); v != "" {
		cfg.Cache.DatabaseURL = v
	}
	if v, ok := envInt("UPCOMING_WINDOW_HOURS"); ok {
		cfg.Window.Hours = v
	}
	if v, ok := envInt("MIN_WINDOW_MATCHES"); ok {
		cfg.Window.MinMatches = v
	}
	if v, ok := envInt("WINDOW_EXTENSION_HOURS"); ok {
		cfg.Window.ExtensionHours = v
	}
	return cfg
}

func normalize(cfg Config) Config {
	cfg.Quota.MaxDailyCalls = clamp(cfg.Quota.MaxDailyCalls, 1, 500)
	cfg.Quota.StaleRefreshReserve = clamp(cfg.Quota.StaleRefreshReserve, 0, cfg.Quota.MaxDailyCalls-1)
	if cfg.Quota.MinRequestInterval < 0 {
		cfg.Quota.MinRequestInterval = 0
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = DefaultConfig().Upstream.Timeout
	}
	if len(cfg.Upstream.Leagues) == 0 {
		cfg.Upstream.Leagues = slices.Clone(DefaultLeagues)
	}
	cfg.Cache.TTLMinutes = clamp(cfg.Cache.TTLMinutes, 1, 720)
	cfg.Cache.ErrorRetryMinutes = clamp(cfg.Cache.ErrorRetryMinutes, 1, 240)
	cfg.Cache.TransientRetryMinutes = clamp(cfg.Cache.TransientRetryMinutes, 1, cfg.Cache.ErrorRetryMinutes)
	cfg.Window.Hours = clamp(cfg.Window.Hours, 1, 48)
	cfg.Window.MinMatches = clamp(cfg.Window.MinMatches, 1, 20)
	cfg.Window.ExtensionHours = clamp(cfg.Window.ExtensionHours, 0, 24)
	return cfg
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(name string) (float64, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envBool(name string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
