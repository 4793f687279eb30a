package store

import "github.com/failab-tohoku/failab-library/internal/query"

// DocumentMeta is the source of truth for "this document is indexed".
// Absence means never seen or removed.
type DocumentMeta struct {
	ID        string
	MTime     int64
	PageCount int
	UpdatedAt int64
}

// Page is one page's cleaned text, 1-based.
type Page struct {
	Number int
	Text   string
}

// DocumentHit is one corpus-search result: a document with the number
// of pages matching the query.
type DocumentHit struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	HitCount int    `json:"hit_count"`
}

// PageHit is one within-document result. Score is backend-relative;
// lower ranks better.
type PageHit struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Page    int     `json:"page"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"-"`
}

// SnippetConfig controls highlight markers and the token window around
// matches.
type SnippetConfig struct {
	Start    string
	End      string
	Ellipsis string
	Tokens   int
}

func (c SnippetConfig) WithDefaults() SnippetConfig {
	if c.Start == "" && c.End == "" {
		c.Start, c.End = "[", "]"
	}
	if c.Ellipsis == "" {
		c.Ellipsis = " ... "
	}
	if c.Tokens <= 0 {
		c.Tokens = 10
	}
	return c
}

// Options configures a Store at open time.
type Options struct {
	Snippet SnippetConfig
}

// Store persists the searchable index. The sync engine is the only
// writer; readers may run concurrently and must always observe a
// document's page set fully-old or fully-new, never a mix.
type Store interface {
	Close() error
	Backend() string

	GetMeta(id string) (DocumentMeta, bool, error)
	ListIndexedIDs() ([]string, error)

	// ReplaceDocument atomically swaps the document's page set:
	// delete all, insert all non-empty pages, upsert meta.
	ReplaceDocument(id string, mtime int64, pageCount int, pages []Page) error
	RemoveDocument(id string) error

	CountGrouped(m query.Match) (int, error)
	SearchGrouped(m query.Match, limit, offset int) ([]DocumentHit, error)

	CountPages(m query.Match, docID string) (int, error)
	SearchPages(m query.Match, docID string, limit, offset int) ([]PageHit, error)
}
