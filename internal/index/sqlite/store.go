package sqlite

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/failab-tohoku/failab-library/internal/index/store"
	"github.com/failab-tohoku/failab-library/internal/query"
)

//go:embed schema.sql
var schemaSQL string

// Store is the FTS5-backed index. WAL mode lets searches proceed while
// a sync pass writes; every mutation is a single transaction, so a
// reader sees a document's page set fully-old or fully-new.
type Store struct {
	db   *sql.DB
	snip store.SnippetConfig
}

var _ store.Store = (*Store)(nil)

func Open(dbPath string, opts store.Options) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("dbPath is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, snip: opts.Snippet.WithDefaults()}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}
	if _, err := s.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}
	if _, err := s.db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		return err
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Backend() string { return "sqlite" }

func (s *Store) GetMeta(id string) (store.DocumentMeta, bool, error) {
	if s == nil || s.db == nil {
		return store.DocumentMeta{}, false, fmt.Errorf("store is not open")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return store.DocumentMeta{}, false, fmt.Errorf("document id is required")
	}

	m := store.DocumentMeta{ID: id}
	err := s.db.QueryRow(
		`SELECT mtime, page_count, updated_at FROM documents WHERE doc_id = ?`,
		id,
	).Scan(&m.MTime, &m.PageCount, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DocumentMeta{}, false, nil
	}
	if err != nil {
		return store.DocumentMeta{}, false, err
	}
	return m, true, nil
}

func (s *Store) ListIndexedIDs() ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}

	rows, err := s.db.Query(`SELECT doc_id FROM documents ORDER BY doc_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CountGrouped(m query.Match) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is not open")
	}

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM (
		   SELECT doc_id FROM pages WHERE pages MATCH ? GROUP BY doc_id
		 )`,
		m.FTS5(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count grouped: %w", err)
	}
	return n, nil
}

func (s *Store) SearchGrouped(m query.Match, limit, offset int) ([]store.DocumentHit, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}

	rows, err := s.db.Query(
		`SELECT doc_id, title, COUNT(*) AS hit_count
		 FROM pages
		 WHERE pages MATCH ?
		 GROUP BY doc_id, title
		 ORDER BY hit_count DESC, title ASC
		 LIMIT ? OFFSET ?`,
		m.FTS5(), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("search grouped: %w", err)
	}
	defer rows.Close()

	var hits []store.DocumentHit
	for rows.Next() {
		var h store.DocumentHit
		if err := rows.Scan(&h.ID, &h.Title, &h.HitCount); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) CountPages(m query.Match, docID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is not open")
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return 0, fmt.Errorf("document id is required")
	}

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM pages WHERE pages MATCH ? AND doc_id = ?`,
		m.FTS5(), docID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

func (s *Store) SearchPages(m query.Match, docID string, limit, offset int) ([]store.PageHit, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, fmt.Errorf("document id is required")
	}

	// snippet() arguments must be constants; markers are escaped and
	// inlined. Column 3 is content.
	q := fmt.Sprintf(
		`SELECT doc_id, title, page,
		        snippet(pages, 3, %s, %s, %s, %d) AS snip,
		        bm25(pages) AS score
		 FROM pages
		 WHERE pages MATCH ? AND doc_id = ?
		 ORDER BY score
		 LIMIT ? OFFSET ?`,
		sqlString(s.snip.Start), sqlString(s.snip.End), sqlString(s.snip.Ellipsis), s.snip.Tokens,
	)

	rows, err := s.db.Query(q, m.FTS5(), docID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}
	defer rows.Close()

	var hits []store.PageHit
	for rows.Next() {
		var h store.PageHit
		if err := rows.Scan(&h.ID, &h.Title, &h.Page, &h.Snippet, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
