package cli

import (
	"fmt"

	"github.com/failab-tohoku/failab-library/internal/config"
	"github.com/failab-tohoku/failab-library/internal/index/backend"
	"github.com/failab-tohoku/failab-library/internal/index/store"
	"github.com/failab-tohoku/failab-library/internal/library/scan"
	libsync "github.com/failab-tohoku/failab-library/internal/library/sync"
	"github.com/failab-tohoku/failab-library/internal/search"
)

// app holds the wired core shared by the subcommands.
type app struct {
	cfg     config.Config
	scanner *scan.Scanner
	store   store.Store
	engine  *libsync.Engine
	search  *search.Service
}

func newApp(cfg config.Config) (*app, error) {
	scanner, err := scan.New(cfg.Library.Dir, cfg.Library.Extensions, cfg.Library.IgnoreFile)
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}

	name := backend.NormalizeName(cfg.Index.Backend)
	path := cfg.Index.Path
	if path == "" {
		path = backend.DefaultPath(cfg.Library.Dir, name)
	}
	st, err := backend.Open(name, path, store.Options{
		Snippet: store.SnippetConfig{
			Start:    cfg.Search.SnippetStart,
			End:      cfg.Search.SnippetEnd,
			Ellipsis: cfg.Search.SnippetEllipsis,
			Tokens:   cfg.Search.SnippetTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	engine := libsync.New(scanner, st, libsync.Options{
		MinInterval: cfg.Sync.MinInterval,
		Workers:     cfg.Sync.Workers,
	})

	return &app{
		cfg:     cfg,
		scanner: scanner,
		store:   st,
		engine:  engine,
		search:  search.New(st, engine),
	}, nil
}

func (a *app) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}
