// Package testenv isolates fixturegate's directories in tests.
package testenv

import "path/filepath"

type Dirs struct {
	Base   string
	Config string
	Cache  string
}

// Isolate points FIXTUREGATE_CONFIG_DIR and FIXTUREGATE_CACHE_DIR at
// subdirectories of base. Pass t.Setenv as setenv.
func Isolate(setenv func(string, string), base string) Dirs {
	dirs := Dirs{
		Base:   base,
		Config: filepath.Join(base, "config"),
		Cache:  filepath.Join(base, "cache"),
	}
	setenv("FIXTUREGATE_CONFIG_DIR", dirs.Config)
	setenv("FIXTUREGATE_CACHE_DIR", dirs.Cache)
	return dirs
}

// EnvVars lists the variables that override configuration.
var EnvVars = []string{
	"API_SPORTS_KEY", "REQUEST_TIMEOUT_SECONDS", "FILTER_TARGET_LEAGUES",
	"MAX_DAILY_API_CALLS", "MIN_REQUEST_INTERVAL_SECONDS",
	"FIXTURE_CACHE_REFRESH_MINUTES", "FIXTURE_ERROR_RETRY_MINUTES",
	"SINGLE_FETCH_PER_DATE_PER_DAY", "FIXTUREGATE_TIMEZONE", "CACHE_DATABASE_URL",
	"UPCOMING_WINDOW_HOURS", "MIN_WINDOW_MATCHES", "WINDOW_EXTENSION_HOURS",
}

// ClearEnv blanks every override variable so the host environment does not
// leak into a test.
func ClearEnv(setenv func(string, string)) {
	for _, name := range EnvVars {
		setenv(name, "")
	}
}
