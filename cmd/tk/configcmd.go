package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/timekeep/internal/config"
	"github.com/mschirtzinger/timekeep/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "config",
	Short:   "Inspect and edit stored configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, opts, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		redacted := opts
		if redacted.Token != "" {
			redacted.Token = "********"
		}
		if done, err := printStructured(redacted); done {
			return err
		}
		return config.ExportTOML(os.Stdout, redacted)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set one configuration field",
	Long: `Set one configuration field and store the result.

Keys: instance, domain, user, token, offline, autosync, cache-ttl, theme`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		key, value := strings.ToLower(args[0]), args[1]

		s, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		var setErr error
		err = config.NewManager(s).Merge(ctx, func(o *config.Options) {
			switch key {
			case "instance":
				o.Instance = value
			case "domain":
				o.Domain = value
			case "user":
				o.User = value
			case "token":
				o.Token = value
			case "offline":
				o.OfflineMode, setErr = strconv.ParseBool(value)
			case "autosync":
				o.AutosyncMinutes, setErr = strconv.Atoi(value)
			case "cache-ttl":
				o.CacheTTLMinutes, setErr = strconv.Atoi(value)
			case "theme":
				o.Theme = value
			default:
				setErr = fmt.Errorf("unknown key %q", key)
			}
		})
		if setErr != nil {
			return setErr
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s updated\n", ui.RenderPass("✓"), key)
		return nil
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := config.NewManager(s).Reset(ctx); err != nil {
			return err
		}
		fmt.Printf("%s Configuration reset to defaults\n", ui.RenderPass("✓"))
		return nil
	},
}

var configExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write the configuration to a TOML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, opts, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[0], err)
		}
		defer f.Close()

		if err := config.ExportTOML(f, opts); err != nil {
			return err
		}
		fmt.Printf("%s Exported configuration to %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var configImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the configuration from a TOML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		opts, err := config.ImportTOML(f)
		if err != nil {
			return err
		}

		s, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := config.NewManager(s).Set(ctx, opts); err != nil {
			return err
		}
		fmt.Printf("%s Imported configuration from %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configExportCmd)
	configCmd.AddCommand(configImportCmd)
	rootCmd.AddCommand(configCmd)
}
