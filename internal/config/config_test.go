package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/go-cmp/cmp"
	"github.com/joho/godotenv"

	"github.com/fixturegate/fixturegate/internal/testenv"
)

// Helpers

func setupTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testenv.Isolate(t.Setenv, dir)
	testenv.ClearEnv(t.Setenv)
	configMu.Lock()
	globalConfig = nil
	configMu.Unlock()
	return dir
}

func writeTestFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll(%s): %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

// DefaultConfig

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Quota.MaxDailyCalls != 25 {
		t.Errorf("Quota.MaxDailyCalls = %d, want 25", cfg.Quota.MaxDailyCalls)
	}
	if cfg.Cache.TTLMinutes != 90 {
		t.Errorf("Cache.TTLMinutes = %d, want 90", cfg.Cache.TTLMinutes)
	}
	if cfg.Cache.ErrorRetryMinutes != 30 {
		t.Errorf("Cache.ErrorRetryMinutes = %d, want 30", cfg.Cache.ErrorRetryMinutes)
	}
	if !cfg.Cache.SingleFetchPerDate {
		t.Error("Cache.SingleFetchPerDate should default to true")
	}
	if !cfg.Cache.AllowTomorrow {
		t.Error("Cache.AllowTomorrow should default to true")
	}
	if cfg.Upstream.Timeout != 10.0 {
		t.Errorf("Upstream.Timeout = %v, want 10.0", cfg.Upstream.Timeout)
	}
	if diff := cmp.Diff([]int{2, 39, 140, 78, 135}, cfg.Upstream.Leagues); diff != "" {
		t.Errorf("Upstream.Leagues mismatch (-want +got):\n%s", diff)
	}
	if cfg.Quota.StaleRefreshReserve != len(DefaultLeagues) {
		t.Errorf("Quota.StaleRefreshReserve = %d, want one call per default league", cfg.Quota.StaleRefreshReserve)
	}
	if cfg.Window.Hours != 20 || cfg.Window.MinMatches != 4 || cfg.Window.ExtensionHours != 4 {
		t.Errorf("Window = %+v, want hours=20 min_matches=4 extension_hours=4", cfg.Window)
	}
	if cfg.Serve.Addr != ":8080" {
		t.Errorf("Serve.Addr = %q, want :8080", cfg.Serve.Addr)
	}
}

func TestDefaultConfig_LeaguesNotShared(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Upstream.Leagues[0] = 999
	if DefaultLeagues[0] == 999 {
		t.Fatal("DefaultConfig() must copy DefaultLeagues")
	}
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Upstream.Timeout = 2.5
	cfg.Quota.MinRequestInterval = 0

	if got := cfg.Timeout(); got != 2500*time.Millisecond {
		t.Errorf("Timeout() = %v, want 2.5s", got)
	}
	if got := cfg.MinInterval(); got != 0 {
		t.Errorf("MinInterval() = %v, want 0", got)
	}
	if got := cfg.TTL(); got != 90*time.Minute {
		t.Errorf("TTL() = %v, want 90m", got)
	}
	if got := cfg.ErrorRetry(); got != 30*time.Minute {
		t.Errorf("ErrorRetry() = %v, want 30m", got)
	}
	if got := cfg.TransientRetry(); got != 5*time.Minute {
		t.Errorf("TransientRetry() = %v, want 5m", got)
	}
}

func TestLocation(t *testing.T) {
	tests := []struct {
		tz      string
		want    string
		wantErr bool
	}{
		{tz: "", want: time.Local.String()},
		{tz: "Local", want: time.Local.String()},
		{tz: "UTC", want: "UTC"},
		{tz: "Europe/London", want: "Europe/London"},
		{tz: "Not/AZone", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.tz, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Cache.Timezone = tt.tz
			loc, err := cfg.Location()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Location() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Location() error = %v", err)
			}
			if loc.String() != tt.want {
				t.Errorf("Location() = %q, want %q", loc, tt.want)
			}
		})
	}
}

// Load and Save

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	dir := setupTempDir(t)
	cfg, err := Load(filepath.Join(dir, "nonexistent.toml"))
	if err != nil {
		t.Errorf("Load() error = %v, want nil for missing file", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MalformedTOML_ReturnsDefaultsAndError(t *testing.T) {
	dir := setupTempDir(t)
	path := filepath.Join(dir, "bad.toml")
	writeTestFile(t, path, []byte("this is not valid [[[toml"))

	cfg, err := Load(path)
	if err == nil {
		t.Fatal("Load() should return an error for malformed TOML")
	}
	if !strings.Contains(err.Error(), "parsing config") {
		t.Errorf("error should contain 'parsing config', got: %v", err)
	}
	if cfg.Quota.MaxDailyCalls != DefaultConfig().Quota.MaxDailyCalls {
		t.Errorf("Quota.MaxDailyCalls = %d, want default", cfg.Quota.MaxDailyCalls)
	}
}

func TestLoad_PartialTOML_MergesWithDefaults(t *testing.T) {
	dir := setupTempDir(t)
	path := filepath.Join(dir, "partial.toml")
	writeTestFile(t, path, []byte(`
[quota]
max_daily_calls = 10

[upstream]
leagues = [39]
`))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for valid TOML", err)
	}
	if cfg.Quota.MaxDailyCalls != 10 {
		t.Errorf("Quota.MaxDailyCalls = %d, want 10 (from file)", cfg.Quota.MaxDailyCalls)
	}
	if diff := cmp.Diff([]int{39}, cfg.Upstream.Leagues); diff != "" {
		t.Errorf("Upstream.Leagues mismatch (-want +got):\n%s", diff)
	}
	// Other fields should retain defaults
	if cfg.Cache.TTLMinutes != 90 {
		t.Errorf("Cache.TTLMinutes = %d, want 90 (default)", cfg.Cache.TTLMinutes)
	}
	if cfg.Quota.MinRequestInterval != 1.0 {
		t.Errorf("Quota.MinRequestInterval = %v, want 1.0 (default)", cfg.Quota.MinRequestInterval)
	}
}

func TestLoad_ClampsOutOfRangeValues(t *testing.T) {
	dir := setupTempDir(t)
	path := filepath.Join(dir, "clamp.toml")
	writeTestFile(t, path, []byte(`
[quota]
max_daily_calls = 9000
stale_refresh_reserve = 9000
min_request_interval = -3.0

[cache]
ttl_minutes = 0
error_retry_minutes = 1000
transient_retry_minutes = 0

[window]
hours = 100
min_matches = 0
extension_hours = -1

[upstream]
leagues = []
timeout = 0.0
`))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	checks := []struct {
		name      string
		got, want int
	}{
		{"Quota.MaxDailyCalls", cfg.Quota.MaxDailyCalls, 500},
		{"Quota.StaleRefreshReserve", cfg.Quota.StaleRefreshReserve, 499},
		{"Cache.TTLMinutes", cfg.Cache.TTLMinutes, 1},
		{"Cache.ErrorRetryMinutes", cfg.Cache.ErrorRetryMinutes, 240},
		{"Cache.TransientRetryMinutes", cfg.Cache.TransientRetryMinutes, 1},
		{"Window.Hours", cfg.Window.Hours, 48},
		{"Window.MinMatches", cfg.Window.MinMatches, 1},
		{"Window.ExtensionHours", cfg.Window.ExtensionHours, 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if cfg.Quota.MinRequestInterval != 0 {
		t.Errorf("Quota.MinRequestInterval = %v, want 0", cfg.Quota.MinRequestInterval)
	}
	if cfg.Upstream.Timeout != 10.0 {
		t.Errorf("Upstream.Timeout = %v, want default 10.0", cfg.Upstream.Timeout)
	}
	if len(cfg.Upstream.Leagues) != len(DefaultLeagues) {
		t.Errorf("Upstream.Leagues = %v, want defaults", cfg.Upstream.Leagues)
	}
}

func TestSave_CreatesDirAndFile(t *testing.T) {
	dir := setupTempDir(t)
	path := filepath.Join(dir, "nested", "deep", "config.toml")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestSave_Load_Roundtrip(t *testing.T) {
	dir := setupTempDir(t)
	path := filepath.Join(dir, "roundtrip.toml")

	original := DefaultConfig()
	original.Upstream.Leagues = []int{39, 140}
	original.Quota.MaxDailyCalls = 40
	original.Cache.Timezone = "Europe/Madrid"
	original.Cache.SingleFetchPerDate = false
	original.Serve.WarmOnStart = true

	if err := Save(original, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(original, loaded); diff != "" {
		t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

// Environment overrides

func TestApplyEnvOverrides(t *testing.T) {
	setupTempDir(t)
	t.Setenv("API_SPORTS_KEY", "  secret  ")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "4.5")
	t.Setenv("MAX_DAILY_API_CALLS", "7")
	t.Setenv("MIN_REQUEST_INTERVAL_SECONDS", "0")
	t.Setenv("FIXTURE_CACHE_REFRESH_MINUTES", "15")
	t.Setenv("FIXTURE_ERROR_RETRY_MINUTES", "10")
	t.Setenv("SINGLE_FETCH_PER_DATE_PER_DAY", "false")
	t.Setenv("FILTER_TARGET_LEAGUES", "0")
	t.Setenv("FIXTUREGATE_TIMEZONE", "UTC")
	t.Setenv("CACHE_DATABASE_URL", "postgres://localhost/fixtures")
	t.Setenv("UPCOMING_WINDOW_HOURS", "12")

	cfg := applyEnvOverrides(DefaultConfig())

	if cfg.Upstream.APIKey != "secret" {
		t.Errorf("Upstream.APIKey = %q, want trimmed 'secret'", cfg.Upstream.APIKey)
	}
	if cfg.Upstream.Timeout != 4.5 {
		t.Errorf("Upstream.Timeout = %v, want 4.5", cfg.Upstream.Timeout)
	}
	if cfg.Quota.MaxDailyCalls != 7 {
		t.Errorf("Quota.MaxDailyCalls = %d, want 7", cfg.Quota.MaxDailyCalls)
	}
	if cfg.Quota.MinRequestInterval != 0 {
		t.Errorf("Quota.MinRequestInterval = %v, want 0", cfg.Quota.MinRequestInterval)
	}
	if cfg.Cache.TTLMinutes != 15 || cfg.Cache.ErrorRetryMinutes != 10 {
		t.Errorf("Cache = %+v, want ttl 15 and error retry 10", cfg.Cache)
	}
	if cfg.Cache.SingleFetchPerDate {
		t.Error("Cache.SingleFetchPerDate should be false")
	}
	if cfg.Upstream.FilterTargetLeagues {
		t.Error("Upstream.FilterTargetLeagues should be false")
	}
	if cfg.Cache.Timezone != "UTC" {
		t.Errorf("Cache.Timezone = %q, want UTC", cfg.Cache.Timezone)
	}
	if cfg.Cache.DatabaseURL != "postgres://localhost/fixtures" {
		t.Errorf("Cache.DatabaseURL = %q", cfg.Cache.DatabaseURL)
	}
	if cfg.Window.Hours != 12 {
		t.Errorf("Window.Hours = %d, want 12", cfg.Window.Hours)
	}
}

func TestApplyEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	setupTempDir(t)
	t.Setenv("MAX_DAILY_API_CALLS", "lots")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "soon")
	t.Setenv("SINGLE_FETCH_PER_DATE_PER_DAY", "maybe")

	cfg := applyEnvOverrides(DefaultConfig())
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("invalid env values should be ignored (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverridesFileThenClamps(t *testing.T) {
	dir := setupTempDir(t)
	path := filepath.Join(dir, "config.toml")
	writeTestFile(t, path, []byte("[quota]\nmax_daily_calls = 10\n"))
	t.Setenv("MAX_DAILY_API_CALLS", "0")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Quota.MaxDailyCalls != 1 {
		t.Errorf("Quota.MaxDailyCalls = %d, want env value clamped to 1", cfg.Quota.MaxDailyCalls)
	}
}

func TestLoadDotenv(t *testing.T) {
	setupTempDir(t)
	t.Chdir(t.TempDir())
	writeTestFile(t, EnvFile(), []byte("API_SPORTS_KEY=from-dotenv\nMAX_DAILY_API_CALLS=3\n"))
	// godotenv treats empty-but-set variables as present.
	_ = os.Unsetenv("API_SPORTS_KEY")
	_ = os.Unsetenv("MAX_DAILY_API_CALLS")

	if err := LoadDotenv(); err != nil {
		t.Fatalf("LoadDotenv() error = %v", err)
	}
	if got := os.Getenv("API_SPORTS_KEY"); got != "from-dotenv" {
		t.Errorf("API_SPORTS_KEY = %q, want from-dotenv", got)
	}
	cfg, _ := Load("")
	if cfg.Quota.MaxDailyCalls != 3 {
		t.Errorf("Quota.MaxDailyCalls = %d, want 3", cfg.Quota.MaxDailyCalls)
	}
}

func TestLoadDotenv_ExistingEnvWins(t *testing.T) {
	setupTempDir(t)
	t.Chdir(t.TempDir())
	writeTestFile(t, ".env", []byte("API_SPORTS_KEY=from-file\n"))
	t.Setenv("API_SPORTS_KEY", "from-env")

	if err := LoadDotenv(); err != nil {
		t.Fatalf("LoadDotenv() error = %v", err)
	}
	if got := os.Getenv("API_SPORTS_KEY"); got != "from-env" {
		t.Errorf("API_SPORTS_KEY = %q, want from-env", got)
	}
}

func TestLoadDotenv_NoFiles(t *testing.T) {
	setupTempDir(t)
	t.Chdir(t.TempDir())
	if err := LoadDotenv(); err != nil {
		t.Errorf("LoadDotenv() error = %v, want nil without files", err)
	}
}

func TestSetEnvValue(t *testing.T) {
	setupTempDir(t)
	writeTestFile(t, EnvFile(), []byte("CACHE_DATABASE_URL=postgres://db/fixtures\n"))

	if err := SetEnvValue("API_SPORTS_KEY", "abc123"); err != nil {
		t.Fatalf("SetEnvValue() error = %v", err)
	}
	vars, err := godotenv.Read(EnvFile())
	if err != nil {
		t.Fatalf("reading env file: %v", err)
	}
	want := map[string]string{
		"API_SPORTS_KEY":     "abc123",
		"CACHE_DATABASE_URL": "postgres://db/fixtures",
	}
	if diff := cmp.Diff(want, vars); diff != "" {
		t.Errorf("env file (-want +got):\n%s", diff)
	}
	info, err := os.Stat(EnvFile())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("env file mode = %o, want 600", perm)
	}
}

func TestSetEnvValue_CreatesFile(t *testing.T) {
	setupTempDir(t)
	if err := SetEnvValue("API_SPORTS_KEY", "abc123"); err != nil {
		t.Fatalf("SetEnvValue() error = %v", err)
	}
	vars, err := godotenv.Read(EnvFile())
	if err != nil {
		t.Fatalf("reading env file: %v", err)
	}
	if vars["API_SPORTS_KEY"] != "abc123" {
		t.Errorf("API_SPORTS_KEY = %q", vars["API_SPORTS_KEY"])
	}
}

// Get and Reload

func TestGetAndReload_NoConcurrentRace(t *testing.T) {
	setupTempDir(t)
	var wg sync.WaitGroup
	_ = Get()
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = Get()
		}()
		go func() {
			defer wg.Done()
			_, _ = Reload()
		}()
	}
	wg.Wait()
}

func TestGet_ReturnsCopy(t *testing.T) {
	setupTempDir(t)

	cfg := Get()
	cfg.Quota.MaxDailyCalls = 999
	if Get().Quota.MaxDailyCalls == 999 {
		t.Error("Get() should return a copy: scalar field mutation leaked")
	}

	cfg2 := Get()
	cfg2.Upstream.Leagues[0] = -1
	if Get().Upstream.Leagues[0] == -1 {
		t.Error("Get() should return a copy: Leagues slice mutation leaked")
	}
}

func TestReload_PicksUpChanges(t *testing.T) {
	setupTempDir(t)
	if got := Get().Quota.MaxDailyCalls; got != 25 {
		t.Fatalf("initial MaxDailyCalls = %d, want 25", got)
	}

	writeTestFile(t, ConfigFile(), []byte("[quota]\nmax_daily_calls = 12\n"))
	if got := Get().Quota.MaxDailyCalls; got != 25 {
		t.Errorf("Get() before Reload = %d, want cached 25", got)
	}
	cfg, err := Reload()
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if cfg.Quota.MaxDailyCalls != 12 || Get().Quota.MaxDailyCalls != 12 {
		t.Errorf("after Reload MaxDailyCalls = %d, want 12", cfg.Quota.MaxDailyCalls)
	}
}

func TestReload_MalformedTOML_ReturnsError(t *testing.T) {
	setupTempDir(t)
	writeTestFile(t, ConfigFile(), []byte("not [[[ toml"))
	if _, err := Reload(); err == nil {
		t.Error("Reload() should surface parse errors")
	}
}

// Paths

func TestConfigDir_EnvOverride(t *testing.T) {
	t.Setenv("FIXTUREGATE_CONFIG_DIR", "/custom/config")
	if got := ConfigDir(); got != "/custom/config" {
		t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config")
	}
}

func TestCacheDir_EnvOverride(t *testing.T) {
	t.Setenv("FIXTUREGATE_CACHE_DIR", "/custom/cache")
	if got := CacheDir(); got != "/custom/cache" {
		t.Errorf("CacheDir() = %q, want %q", got, "/custom/cache")
	}
}

func TestDefaultDirs_UseXDG(t *testing.T) {
	t.Setenv("FIXTUREGATE_CONFIG_DIR", "")
	t.Setenv("FIXTUREGATE_CACHE_DIR", "")
	base := t.TempDir()

	oldConfig, oldCache := xdg.ConfigHome, xdg.CacheHome
	xdg.ConfigHome = filepath.Join(base, "config")
	xdg.CacheHome = filepath.Join(base, "cache")
	t.Cleanup(func() { xdg.ConfigHome, xdg.CacheHome = oldConfig, oldCache })

	if got, want := ConfigFile(), filepath.Join(base, "config", "fixturegate", "config.toml"); got != want {
		t.Errorf("ConfigFile() = %q, want %q", got, want)
	}
	if got, want := CacheDir(), filepath.Join(base, "cache", "fixturegate"); got != want {
		t.Errorf("CacheDir() = %q, want %q", got, want)
	}
	if got, want := EnvFile(), filepath.Join(base, "config", "fixturegate", ".env"); got != want {
		t.Errorf("EnvFile() = %q, want %q", got, want)
	}
}
