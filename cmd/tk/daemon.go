package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mschirtzinger/timekeep/internal/daemon"
	"github.com/mschirtzinger/timekeep/internal/store"
	"github.com/mschirtzinger/timekeep/internal/ui"
)

var daemonForeground bool

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the timekeep daemon in this process.

The daemon hosts the local bus other tk invocations connect to, watches
the shared store for changes, and flushes the update queue on the
autosync interval. Logs rotate under <data-dir>/logs/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := dataDir()
		if err != nil {
			return err
		}

		logger, closeLogs, err := daemonLogger(dir)
		if err != nil {
			return err
		}
		defer closeLogs()

		s, err := store.Open(dir, logger)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer s.Close()

		cfg := daemon.DefaultConfig()
		cfg.Addr = busAddr()
		cfg.Logger = logger

		d, err := daemon.New(s, cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("%s Daemon running on %s (ctrl-c to stop)\n", ui.RenderPass("✓"), cfg.Addr)
		return d.Start(ctx)
	},
}

// daemonLogger logs to rotated files under <dir>/logs, mirrored to
// stderr when running with --foreground or --verbose.
func daemonLogger(dir string) (*log.Logger, func(), error) {
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "daemon.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	var out io.Writer = rotator
	if daemonForeground || viper.GetBool("verbose") {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	logger := log.New(out, "[daemon] ", log.LstdFlags)
	return logger, func() { _ = rotator.Close() }, nil
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "mirror logs to stderr")
	rootCmd.AddCommand(daemonCmd)
}
