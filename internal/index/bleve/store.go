package bleve

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.etcd.io/bbolt"

	"github.com/failab-tohoku/failab-library/internal/index/store"
)

const bucketDocuments = "documents"

// Store is the bleve-backed index. Page entries live in the bleve
// index; document metadata lives in a bbolt sidecar so ListIndexedIDs
// and mtime lookups stay cheap.
type Store struct {
	mu       sync.Mutex
	path     string
	metaPath string
	idx      bleve.Index
	meta     *bbolt.DB
	snip     store.SnippetConfig
}

var _ store.Store = (*Store)(nil)

type docMeta struct {
	MTime        int64 `json:"mtime"`
	PageCount    int   `json:"page_count"`
	UpdatedAt    int64 `json:"updated_at"`
	IndexedPages []int `json:"indexed_pages"`
}

func Open(path string, opts store.Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("dbPath is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	var idx bleve.Index
	if _, err := os.Stat(filepath.Join(path, "index_meta.json")); err == nil {
		idx, err = bleve.Open(path)
		if err != nil {
			return nil, err
		}
	} else {
		m, err := buildMapping()
		if err != nil {
			return nil, err
		}
		idx, err = bleve.New(path, m)
		if err != nil {
			return nil, err
		}
	}

	metaPath := filepath.Join(path, "failib-meta.db")
	meta, err := bbolt.Open(metaPath, 0o600, nil)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	s := &Store{
		path:     path,
		metaPath: metaPath,
		idx:      idx,
		meta:     meta,
		snip:     opts.Snippet.WithDefaults(),
	}
	if err := s.meta.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketDocuments))
		return err
	}); err != nil {
		_ = meta.Close()
		_ = idx.Close()
		return nil, err
	}
	return s, nil
}

const pageTextAnalyzer = "page_text"

func buildMapping() (mapping.IndexMapping, error) {
	m := bleve.NewIndexMapping()

	// Unicode tokenizer plus lowercasing only. The stock analyzer also
	// strips English stop words, which would make a query like "a"
	// match nothing while the FTS5 backend matches it.
	if err := m.AddCustomAnalyzer(pageTextAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("doc_id", bleve.NewKeywordFieldMapping())
	doc.AddFieldMappingsAt("title", bleve.NewKeywordFieldMapping())
	doc.AddFieldMappingsAt("page", bleve.NewNumericFieldMapping())

	content := bleve.NewTextFieldMapping()
	content.Store = true
	content.Analyzer = pageTextAnalyzer
	doc.AddFieldMappingsAt("content", content)

	m.DefaultMapping = doc
	return m, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if s.idx != nil {
		_ = s.idx.Close()
	}
	if s.meta != nil {
		_ = s.meta.Close()
	}
	return nil
}

func (s *Store) Backend() string { return "bleve" }

func pageEntryID(docID string, page int) string {
	return docID + "\x1f" + strconv.Itoa(page)
}

func (s *Store) GetMeta(id string) (store.DocumentMeta, bool, error) {
	if s == nil || s.meta == nil {
		return store.DocumentMeta{}, false, fmt.Errorf("store is not open")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return store.DocumentMeta{}, false, fmt.Errorf("document id is required")
	}

	var m docMeta
	found := false
	err := s.meta.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketDocuments)).Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &m)
	})
	if err != nil || !found {
		return store.DocumentMeta{}, false, err
	}
	return store.DocumentMeta{
		ID:        id,
		MTime:     m.MTime,
		PageCount: m.PageCount,
		UpdatedAt: m.UpdatedAt,
	}, true, nil
}

func (s *Store) ListIndexedIDs() ([]string, error) {
	if s == nil || s.meta == nil {
		return nil, fmt.Errorf("store is not open")
	}

	var ids []string
	err := s.meta.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketDocuments)).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) ReplaceDocument(id string, mtime int64, pageCount int, pages []store.Page) error {
	if s == nil || s.idx == nil {
		return fmt.Errorf("store is not open")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	if pageCount < 0 {
		return fmt.Errorf("page count must be >= 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, _, err := s.getDocMeta(id)
	if err != nil {
		return err
	}

	// One batch deletes the old page set and indexes the new one, so
	// searches see the swap as a unit.
	batch := s.idx.NewBatch()
	for _, p := range old.IndexedPages {
		batch.Delete(pageEntryID(id, p))
	}

	var indexed []int
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if err := batch.Index(pageEntryID(id, p.Number), map[string]any{
			"doc_id":  id,
			"title":   id,
			"page":    p.Number,
			"content": p.Text,
		}); err != nil {
			return err
		}
		indexed = append(indexed, p.Number)
	}

	if err := s.idx.Batch(batch); err != nil {
		return err
	}

	return s.putDocMeta(id, docMeta{
		MTime:        mtime,
		PageCount:    pageCount,
		UpdatedAt:    time.Now().Unix(),
		IndexedPages: indexed,
	})
}

func (s *Store) RemoveDocument(id string) error {
	if s == nil || s.idx == nil {
		return fmt.Errorf("store is not open")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("document id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, found, err := s.getDocMeta(id)
	if err != nil {
		return err
	}
	if found {
		batch := s.idx.NewBatch()
		for _, p := range old.IndexedPages {
			batch.Delete(pageEntryID(id, p))
		}
		if err := s.idx.Batch(batch); err != nil {
			return err
		}
	}

	return s.meta.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketDocuments)).Delete([]byte(id))
	})
}

func (s *Store) getDocMeta(id string) (docMeta, bool, error) {
	var m docMeta
	found := false
	err := s.meta.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketDocuments)).Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &m)
	})
	return m, found, err
}

func (s *Store) putDocMeta(id string, m docMeta) error {
	buf, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.meta.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketDocuments)).Put([]byte(id), buf)
	})
}
