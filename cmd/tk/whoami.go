package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/timekeep/internal/remote"
	"github.com/mschirtzinger/timekeep/internal/ui"
)

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "config",
	Short:   "Show the authenticated tracker identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, opts, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if !opts.Valid() {
			return fmt.Errorf("remote access is not configured; run 'tk setup'")
		}

		identities := remote.NewIdentityCache(10 * time.Minute)
		identity, err := identities.FetchSelf(ctx, remote.Select(opts), opts)
		if err != nil {
			if remote.IsAuth(err) {
				return fmt.Errorf("token rejected by %s; re-run 'tk setup'", opts.Domain)
			}
			return err
		}

		if done, err := printStructured(identity); done {
			return err
		}

		fmt.Printf("%s", ui.RenderAccent(identity.DisplayName))
		if identity.User != "" {
			fmt.Printf(" %s", ui.RenderMuted("("+identity.User+")"))
		}
		fmt.Println()
		if identity.EmailAddress != "" {
			fmt.Println(ui.RenderMuted(identity.EmailAddress))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
