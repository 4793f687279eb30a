package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSearchCommand(opts *rootOptions) *cobra.Command {
	var (
		docID   string
		page    int
		perPage int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the library from the command line",
		Args:  cobra.MinimumNArgs(1),
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

			out := cmd.OutOrStdout()
			if docID != "" {
				res, err := app.search.Document(cmd.Context(), args[0], docID, page, perPage)
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(out).Encode(res)
				}
				for _, hit := range res.Results {
					_, _ = fmt.Fprintf(out, "%s p.%d\t%s\n", hit.ID, hit.Page, hit.Snippet)
				}
				_, _ = fmt.Fprintf(out, "%d matching pages\n", res.Total)
				return nil
			}

			res, err := app.search.Corpus(cmd.Context(), args[0], page, perPage)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(out).Encode(res)
			}
			for _, hit := range res.Results {
				_, _ = fmt.Fprintf(out, "%s\t%d pages\n", hit.ID, hit.HitCount)
			}
			_, _ = fmt.Fprintf(out, "%d matching documents\n", res.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&docID, "pdf", "", "restrict to one document and show page hits")
	cmd.Flags().IntVar(&page, "page", 1, "result page")
	cmd.Flags().IntVar(&perPage, "per-page", 20, "results per page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	return cmd
}
