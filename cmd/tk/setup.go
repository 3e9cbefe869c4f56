package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/timekeep/internal/config"
	"github.com/mschirtzinger/timekeep/internal/remote"
	"github.com/mschirtzinger/timekeep/internal/ui"
)

var setupCmd = &cobra.Command{
	Use:     "setup",
	GroupID: "config",
	Short:   "Interactive configuration",
	Long: `Walk through timekeep configuration interactively.

Collects the instance flavor, tracker domain, account, and token, then
verifies the credentials against the tracker before saving.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, opts, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		autosync := strconv.Itoa(opts.AutosyncMinutes)
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Work offline?").
					Description("Offline mode keeps all worklogs local; no network calls are made.").
					Value(&opts.OfflineMode),
			),
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Instance flavor").
					Options(
						huh.NewOption("Cloud", config.InstanceCloud),
						huh.NewOption("Datacenter (self-hosted)", config.InstanceDatacenter),
					).
					Value(&opts.Instance),
				huh.NewInput().
					Title("Tracker domain").
					Placeholder("tracker.example.com").
					Value(&opts.Domain),
				huh.NewInput().
					Title("Account").
					Value(&opts.User),
				huh.NewInput().
					Title("API token").
					EchoMode(huh.EchoModePassword).
					Value(&opts.Token),
			).WithHideFunc(func() bool { return opts.OfflineMode }),
			huh.NewGroup(
				huh.NewInput().
					Title("Autosync interval (minutes, 0 disables)").
					Value(&autosync).
					Validate(func(s string) error {
						_, err := strconv.Atoi(s)
						return err
					}),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}
		opts.AutosyncMinutes, _ = strconv.Atoi(autosync)
		opts = config.Normalize(opts)

		if !opts.Valid() {
			return fmt.Errorf("domain and token are required unless offline mode is enabled")
		}

		if !opts.OfflineMode {
			fmt.Printf("%s Verifying credentials against %s...\n",
				ui.RenderMuted("·"), opts.Domain)
			if !remote.Select(opts).CheckPermissions(ctx, opts) {
				return fmt.Errorf("the tracker at %s rejected the credentials", opts.Domain)
			}
			fmt.Printf("%s Credentials accepted\n", ui.RenderPass("✓"))
		}

		if err := config.NewManager(s).Set(ctx, opts); err != nil {
			return err
		}
		fmt.Printf("%s Configuration saved\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
