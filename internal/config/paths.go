package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "fixturegate"

func ConfigDir() string {
	if v := getenv("FIXTUREGATE_CONFIG_DIR"); v != "" {
		return v
	}
	return filepath.Join(xdg.ConfigHome, appName)
}

func CacheDir() string {
	if v := getenv("FIXTUREGATE_CACHE_DIR"); v != "" {
		return v
	}
	return filepath.Join(xdg.CacheHome, appName)
}

func ConfigFile() string { return filepath.Join(ConfigDir(), "config.toml") }
func EnvFile() string    { return filepath.Join(ConfigDir(), ".env") }
