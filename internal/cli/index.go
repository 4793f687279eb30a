package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Run one sync pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			app, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.engine.TryRunPass(cmd.Context(), true); err != nil {
				return err
			}

			ids, err := app.store.ListIndexedIDs()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents\n", len(ids))
			return nil
		},
	}
}
