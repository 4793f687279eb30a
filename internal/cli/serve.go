package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/failab-tohoku/failab-library/internal/auth"
	libsync "github.com/failab-tohoku/failab-library/internal/library/sync"
	"github.com/failab-tohoku/failab-library/internal/webd"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the library HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if len(cfg.Server.Users) == 0 {
				return fmt.Errorf("server.users is empty; no one could log in")
			}

			app, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			users := make([]auth.User, 0, len(cfg.Server.Users))
			for _, u := range cfg.Server.Users {
				users = append(users, auth.User{
					Username: u.Username,
					Password: u.Password,
					Role:     u.Role,
				})
			}
			authn, err := auth.New(cfg.Server.TokenSecret, users, auth.Options{
				TokenTTL:       cfg.Server.TokenTTL,
				LoginPerMinute: cfg.Server.LoginPerMinute,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Build the index before accepting traffic.
			if _, err := app.engine.TryRunPass(ctx, true); err != nil {
				return fmt.Errorf("initial sync: %w", err)
			}

			if cfg.Sync.Watch {
				watcher, err := libsync.NewWatcher(cfg.Library.Dir, cfg.Library.Extensions, app.engine, libsync.WatchOptions{})
				if err != nil {
					return fmt.Errorf("watcher: %w", err)
				}
				defer watcher.Close()
				go func() {
					if err := watcher.Run(ctx); err != nil {
						slog.Error("watcher stopped", "error", err)
					}
				}()
			}

			srv := webd.NewServer(webd.Options{Listen: cfg.Server.Listen}, &webd.Handlers{
				Auth:     authn,
				Search:   app.search,
				Syncer:   app.engine,
				Lister:   app.scanner,
				Library:  cfg.Library.Dir,
				ThumbDir: cfg.Library.ThumbDir,
			})
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()

			slog.Info("serving", "listen", cfg.Server.Listen,
				"library", cfg.Library.Dir, "backend", app.store.Backend())
			return srv.Run()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}
