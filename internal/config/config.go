package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete failib configuration.
type Config struct {
	Library LibraryConfig `yaml:"library"`
	Index   IndexConfig   `yaml:"index"`
	Sync    SyncConfig    `yaml:"sync"`
	Search  SearchConfig  `yaml:"search"`
	Server  ServerConfig  `yaml:"server"`
}

// LibraryConfig locates the document collection on disk.
type LibraryConfig struct {
	// Dir is the directory holding the documents.
	Dir string `yaml:"dir"`

	// ThumbDir holds pre-rendered page thumbnails, if any.
	ThumbDir string `yaml:"thumb_dir"`

	// Extensions lists indexable filename suffixes (case-insensitive).
	Extensions []string `yaml:"extensions"`

	// IgnoreFile names a gitignore-style pattern file inside Dir.
	// Matching entries are excluded from scans.
	IgnoreFile string `yaml:"ignore_file"`
}

// IndexConfig selects and locates the index backend.
type IndexConfig struct {
	// Backend is "sqlite" (default) or "bleve".
	Backend string `yaml:"backend"`

	// Path is the index location. Empty means a default next to Dir.
	Path string `yaml:"path"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	// MinInterval is the minimum spacing between unforced sync passes.
	MinInterval time.Duration `yaml:"min_interval"`

	// Workers bounds concurrent document extraction within one pass.
	Workers int `yaml:"workers"`

	// Watch enables the fsnotify-based staleness hint. Change
	// detection stays poll-based; watch events only let the next
	// poll skip the throttle window.
	Watch bool `yaml:"watch"`
}

// SearchConfig tunes result shaping.
type SearchConfig struct {
	SnippetStart    string `yaml:"snippet_start"`
	SnippetEnd      string `yaml:"snippet_end"`
	SnippetEllipsis string `yaml:"snippet_ellipsis"`
	SnippetTokens   int    `yaml:"snippet_tokens"`
}

// ServerConfig configures the HTTP transport and auth.
type ServerConfig struct {
	Listen string `yaml:"listen"`

	// TokenSecret signs access tokens. Required when Users is set.
	TokenSecret string `yaml:"token_secret"`

	// TokenTTL is the access token lifetime.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// LoginPerMinute rate-limits login attempts per username.
	LoginPerMinute int `yaml:"login_per_minute"`

	Users []UserConfig `yaml:"users"`
}

// UserConfig is one static account.
type UserConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// Default returns a configuration usable without a config file,
// rooted at dir.
func Default(dir string) Config {
	return Config{
		Library: LibraryConfig{
			Dir:        dir,
			ThumbDir:   filepath.Join(dir, ".failib", "thumbnails"),
			Extensions: []string{".pdf"},
			IgnoreFile: ".failibignore",
		},
		Index: IndexConfig{
			Backend: "sqlite",
			Path:    "",
		},
		Sync: SyncConfig{
			MinInterval: 30 * time.Second,
			Workers:     4,
			Watch:       false,
		},
		Search: SearchConfig{
			SnippetStart:    "[",
			SnippetEnd:      "]",
			SnippetEllipsis: " ... ",
			SnippetTokens:   10,
		},
		Server: ServerConfig{
			Listen:         "127.0.0.1:8470",
			TokenTTL:       time.Hour,
			LoginPerMinute: 10,
		},
	}
}

// Load reads path and overlays it on the defaults. A missing file is
// not an error; the defaults apply.
func Load(path string, dir string) (Config, error) {
	cfg := Default(dir)

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyFallbacks(dir)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFallbacks(dir string) {
	def := Default(dir)
	if strings.TrimSpace(c.Library.Dir) == "" {
		c.Library.Dir = def.Library.Dir
	}
	if strings.TrimSpace(c.Library.ThumbDir) == "" {
		c.Library.ThumbDir = filepath.Join(c.Library.Dir, ".failib", "thumbnails")
	}
	if len(c.Library.Extensions) == 0 {
		c.Library.Extensions = def.Library.Extensions
	}
	if strings.TrimSpace(c.Library.IgnoreFile) == "" {
		c.Library.IgnoreFile = def.Library.IgnoreFile
	}
	if strings.TrimSpace(c.Index.Backend) == "" {
		c.Index.Backend = def.Index.Backend
	}
	if c.Sync.MinInterval <= 0 {
		c.Sync.MinInterval = def.Sync.MinInterval
	}
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = def.Sync.Workers
	}
	if c.Search.SnippetStart == "" && c.Search.SnippetEnd == "" {
		c.Search.SnippetStart = def.Search.SnippetStart
		c.Search.SnippetEnd = def.Search.SnippetEnd
	}
	if c.Search.SnippetEllipsis == "" {
		c.Search.SnippetEllipsis = def.Search.SnippetEllipsis
	}
	if c.Search.SnippetTokens <= 0 {
		c.Search.SnippetTokens = def.Search.SnippetTokens
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = def.Server.Listen
	}
	if c.Server.TokenTTL <= 0 {
		c.Server.TokenTTL = def.Server.TokenTTL
	}
	if c.Server.LoginPerMinute <= 0 {
		c.Server.LoginPerMinute = def.Server.LoginPerMinute
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Library.Dir) == "" {
		return fmt.Errorf("library.dir is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Index.Backend)) {
	case "sqlite", "sqlite3", "fts5", "bleve":
	default:
		return fmt.Errorf("unknown index backend: %s", c.Index.Backend)
	}
	if len(c.Server.Users) > 0 && strings.TrimSpace(c.Server.TokenSecret) == "" {
		return fmt.Errorf("server.token_secret is required when users are configured")
	}
	for _, u := range c.Server.Users {
		if strings.TrimSpace(u.Username) == "" {
			return fmt.Errorf("server.users entries need a username")
		}
	}
	return nil
}
