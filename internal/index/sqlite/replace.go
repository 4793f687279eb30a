package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/failab-tohoku/failab-library/internal/index/store"
)

// ReplaceDocument swaps the document's indexed pages in one
// transaction: delete all, insert all non-empty pages, upsert meta.
// BEGIN IMMEDIATE takes the write lock up front so the whole swap
// either commits or rolls back as a unit.
func (s *Store) ReplaceDocument(id string, mtime int64, pageCount int, pages []store.Page) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	if pageCount < 0 {
		return fmt.Errorf("page count must be >= 0")
	}

	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
	}()

	if _, err := conn.ExecContext(ctx, `DELETE FROM pages WHERE doc_id = ?`, id); err != nil {
		return err
	}

	stmt, err := conn.PrepareContext(ctx,
		`INSERT INTO pages(doc_id, title, page, content) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, id, id, p.Number, p.Text); err != nil {
			_ = stmt.Close()
			return err
		}
	}
	_ = stmt.Close()

	if _, err := conn.ExecContext(ctx,
		`INSERT INTO documents(doc_id, mtime, page_count, updated_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET
		   mtime = excluded.mtime,
		   page_count = excluded.page_count,
		   updated_at = excluded.updated_at`,
		id, mtime, pageCount, time.Now().Unix(),
	); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return err
	}
	committed = true
	return nil
}

// RemoveDocument deletes a document's pages and meta in one
// transaction.
func (s *Store) RemoveDocument(id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("document id is required")
	}

	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
	}()

	if _, err := conn.ExecContext(ctx, `DELETE FROM pages WHERE doc_id = ?`, id); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, id); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return err
	}
	committed = true
	return nil
}
