package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/fixturegate/fixturegate/internal/config"
	"github.com/fixturegate/fixturegate/internal/prompt"
	"github.com/fixturegate/fixturegate/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration settings",
}

type configShowJSON struct {
	config.Config
	APIKeySet bool   `json:"api_key_set"`
	Database  string `json:"database"`
	Path      string `json:"path"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		cfgPath := config.ConfigFile()

		if jsonOutput {
			return outJSON(configShowJSON{
				Config:    cfg,
				APIKeySet: cfg.Upstream.APIKey != "",
				Database:  databaseLabel(cfg.Cache.DatabaseURL),
				Path:      cfgPath,
			})
		}

		if quiet {
			outln(cfgPath)
			return nil
		}

		out("Config:   %s\n", cfgPath)
		out("API key:  %s\n", setOrMissing(cfg.Upstream.APIKey != ""))
		out("Database: %s\n\n", databaseLabel(cfg.Cache.DatabaseURL))
		cfg.Upstream.APIKey = ""
		cfg.Cache.DatabaseURL = ""
		_ = toml.NewEncoder(outWriter).Encode(cfg)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show directory paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		showCache, _ := cmd.Flags().GetBool("cache")

		if jsonOutput {
			if showCache {
				return outJSON(map[string]string{"cache_dir": config.CacheDir()})
			}
			return outJSON(map[string]string{
				"config_dir":  config.ConfigDir(),
				"config_file": config.ConfigFile(),
				"env_file":    config.EnvFile(),
				"cache_dir":   config.CacheDir(),
			})
		}

		if quiet || showCache {
			if showCache {
				outln(config.CacheDir())
			} else {
				outln(config.ConfigDir())
			}
			return nil
		}

		out("Config dir:    %s\n", config.ConfigDir())
		out("Config file:   %s\n", config.ConfigFile())
		out("Env file:      %s\n", config.EnvFile())
		out("Cache dir:     %s\n", config.CacheDir())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Long: `Write a config file with the default settings. On a terminal, init
asks which leagues to warm and, when no key is set, for the API-Sports key,
which is stored in the config directory's .env file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		cfgPath := config.ConfigFile()
		ask := interactive()

		if _, err := os.Stat(cfgPath); err == nil && !force {
			if !ask {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			ok, err := prompt.Default.Confirm(prompt.ConfirmConfig{
				Title:       "Overwrite " + cfgPath + "?",
				Description: "The current settings are replaced with the defaults.",
			})
			if err != nil {
				return err
			}
			if !ok {
				outln("Kept existing config")
				return nil
			}
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking config: %w", err)
		}

		cfg := config.DefaultConfig()
		wroteKey := false
		if ask {
			leagues, err := prompt.Default.SelectLeagues(prompt.SelectLeaguesConfig{
				Title:   "Leagues to warm",
				Options: leagueOptions(cfg.Upstream.Leagues),
			})
			if err != nil {
				return err
			}
			if len(leagues) > 0 {
				cfg.Upstream.Leagues = leagues
			}
			if config.Get().Upstream.APIKey == "" {
				apiKey, err := prompt.Default.Input(prompt.InputConfig{
					Title:       "API-Sports key",
					Description: "Stored in " + config.EnvFile(),
					Secret:      true,
					Validate:    prompt.ValidateNotEmpty,
				})
				if err != nil {
					return err
				}
				if err := config.SetEnvValue("API_SPORTS_KEY", strings.TrimSpace(apiKey)); err != nil {
					return err
				}
				wroteKey = true
			}
		}

		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		if _, err := config.Reload(); err != nil {
			return err
		}

		if jsonOutput {
			return outJSON(map[string]any{"success": true, "path": cfgPath})
		}
		out("✓ Wrote %s\n", cfgPath)
		if wroteKey {
			out("✓ Saved API key to %s\n", config.EnvFile())
		} else if config.Get().Upstream.APIKey == "" && !quiet {
			outln("Set API_SPORTS_KEY in the environment or in " + config.EnvFile())
		}
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open configuration in editor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath := config.ConfigFile()

		if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
			if err := config.Save(config.DefaultConfig(), cfgPath); err != nil {
				return err
			}
		}

		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}

		c := exec.Command(editor, cfgPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

func init() {
	configPathCmd.Flags().BoolP("cache", "c", false, "Show cache directory")
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configEditCmd)
}

func setOrMissing(ok bool) string {
	if ok {
		return "set"
	}
	return "missing"
}

// databaseLabel names the configured backend without leaking credentials.
func databaseLabel(url string) string {
	if url == "" {
		return "file (" + config.CacheDir() + ")"
	}
	return store.Redact(url)
}

// leagueNames labels the leagues offered by config init.
var leagueNames = map[int]string{
	2:   "UEFA Champions League",
	3:   "UEFA Europa League",
	39:  "Premier League",
	61:  "Ligue 1",
	78:  "Bundesliga",
	88:  "Eredivisie",
	94:  "Primeira Liga",
	135: "Serie A",
	140: "La Liga",
}

func leagueOptions(selected []int) []prompt.LeagueOption {
	ids := make([]int, 0, len(leagueNames))
	for id := range leagueNames {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	opts := make([]prompt.LeagueOption, len(ids))
	for i, id := range ids {
		opts[i] = prompt.LeagueOption{ID: id, Name: leagueNames[id], Selected: slices.Contains(selected, id)}
	}
	return opts
}
