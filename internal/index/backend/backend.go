package backend

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/failab-tohoku/failab-library/internal/index/bleve"
	"github.com/failab-tohoku/failab-library/internal/index/sqlite"
	"github.com/failab-tohoku/failab-library/internal/index/store"
)

func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "sqlite"
	}
	switch name {
	case "sqlite", "sqlite3", "fts5":
		return "sqlite"
	case "bleve":
		return "bleve"
	default:
		return name
	}
}

// DefaultPath places the index alongside the library under .failib.
func DefaultPath(libraryDir string, backend string) string {
	backend = NormalizeName(backend)
	switch backend {
	case "bleve":
		return filepath.Join(libraryDir, ".failib", "index.bleve")
	default:
		return filepath.Join(libraryDir, ".failib", "index.db")
	}
}

func Open(backend string, path string, opts store.Options) (store.Store, error) {
	backend = NormalizeName(backend)
	switch backend {
	case "sqlite":
		return sqlite.Open(path, opts)
	case "bleve":
		return bleve.Open(path, opts)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
