// Package cli implements the failib command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/failab-tohoku/failab-library/internal/config"
	"github.com/failab-tohoku/failab-library/internal/version"
)

type rootOptions struct {
	configPath string
	libraryDir string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "failib",
		Short: "Document library index and search service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Version = version.String()
	cmd.InitDefaultVersionFlag()
	if f := cmd.Flags().Lookup("version"); f != nil {
		f.Shorthand = "v"
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "failib.yaml", "configuration file")
	cmd.PersistentFlags().StringVar(&opts.libraryDir, "library", "", "document directory (overrides config)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newIndexCommand(opts))
	cmd.AddCommand(newSearchCommand(opts))
	return cmd
}

// loadConfig resolves the effective configuration for a subcommand.
func (o *rootOptions) loadConfig() (config.Config, error) {
	dir := o.libraryDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return config.Config{}, err
		}
		dir = cwd
	}

	cfg, err := config.Load(o.configPath, dir)
	if err != nil {
		return config.Config{}, err
	}
	if o.libraryDir != "" {
		cfg.Library.Dir = o.libraryDir
	}
	if _, err := os.Stat(cfg.Library.Dir); err != nil {
		return config.Config{}, fmt.Errorf("library directory: %w", err)
	}
	return cfg, nil
}
