package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/timekeep/internal/config"
	"github.com/mschirtzinger/timekeep/internal/store"
	"github.com/mschirtzinger/timekeep/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "tk",
	Short: "Local-first worklog tracking",
	Long: `timekeep tracks work time against tracker issues.

Entries are queued locally first and synced to the remote tracker in the
background, so logging time works offline and never blocks on the
network. A daemon watches the shared store, runs the autosync timer, and
relays change notifications to every running context.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("no_color") {
			ui.DisableColor()
		}
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tracking", Title: "Tracking Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration Commands:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.String("data-dir", "", "store directory (default: ~/.timekeep)")
	pf.String("bus-addr", "127.0.0.1:8991", "daemon bus address")
	pf.String("format", "text", "output format: text, json, yaml")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("verbose", "v", false, "verbose logging")

	viper.SetEnvPrefix("TK")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = viper.BindPFlag("bus_addr", pf.Lookup("bus-addr"))
	_ = viper.BindPFlag("format", pf.Lookup("format"))
	_ = viper.BindPFlag("no_color", pf.Lookup("no-color"))
	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
}

// dataDir resolves the store directory and creates it if needed.
func dataDir() (string, error) {
	dir := viper.GetString("data_dir")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".timekeep")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

func busAddr() string {
	return viper.GetString("bus_addr")
}

// newLogger returns a logger for CLI-side components. Quiet unless
// --verbose is set.
func newLogger(prefix string) *log.Logger {
	if viper.GetBool("verbose") {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// openStore opens the shared store and loads the current options,
// applying the configured theme.
func openStore(ctx context.Context) (*store.Store, config.Options, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, config.Options{}, err
	}
	s, err := store.Open(dir, newLogger("[store] "))
	if err != nil {
		return nil, config.Options{}, fmt.Errorf("failed to open store: %w", err)
	}
	opts, err := config.NewManager(s).Load(ctx)
	if err != nil {
		_ = s.Close()
		return nil, config.Options{}, err
	}
	ui.SetTheme(opts.Theme)
	return s, opts, nil
}

// printStructured emits v as JSON or YAML per --format. It returns
// false when the format is "text" so callers render themselves.
func printStructured(v any) (bool, error) {
	switch viper.GetString("format") {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}
