package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

func getenv(name string) string { return strings.TrimSpace(os.Getenv(name)) }

// LoadDotenv loads .env from the working directory and then from the
// config directory. Variables already set in the environment win.
// Missing files are not an error.
func LoadDotenv() error {
	for _, path := range []string{".env", EnvFile()} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// SetEnvValue writes name=value into the config directory's .env file,
// keeping the other variables already there.
func SetEnvValue(name, value string) error {
	path := EnvFile()
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		vars = make(map[string]string)
	} else if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	vars[name] = value

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := godotenv.Write(vars, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
