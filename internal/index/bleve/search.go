package bleve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/failab-tohoku/failab-library/internal/index/store"
	"github.com/failab-tohoku/failab-library/internal/query"
)

// groupFetchPage is the batch size groupedHits pages the index with.
// Variable so tests can exercise the paging loop with small corpora.
var groupFetchPage = 1000

// buildQuery renders the compiled match for bleve. Prefix clauses map
// to unanalyzed prefix queries for ASCII tokens; CJK/kana tokens go
// through the analyzer as match queries, since the indexed terms for
// those scripts are per-segment.
func buildQuery(m query.Match) bquery.Query {
	if len(m.Terms) == 0 {
		q := bleve.NewMatchPhraseQuery(m.Phrase)
		q.SetField("content")
		return q
	}

	parts := make([]bquery.Query, 0, len(m.Terms))
	for _, t := range m.Terms {
		if t.Prefix && isASCII(t.Text) {
			q := bleve.NewPrefixQuery(strings.ToLower(t.Text))
			q.SetField("content")
			parts = append(parts, q)
			continue
		}
		q := bleve.NewMatchQuery(t.Text)
		q.SetField("content")
		// A CJK token analyzes into one term per ideograph. Require
		// them all, so 東京都 never matches a page holding only 東.
		q.SetOperator(bquery.MatchQueryOperatorAnd)
		parts = append(parts, q)
	}
	return bleve.NewConjunctionQuery(parts...)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func scopedQuery(m query.Match, docID string) bquery.Query {
	base := buildQuery(m)
	if docID == "" {
		return base
	}
	idQ := bleve.NewTermQuery(docID)
	idQ.SetField("doc_id")
	return bleve.NewConjunctionQuery(base, idQ)
}

func (s *Store) CountGrouped(m query.Match) (int, error) {
	hits, err := s.groupedHits(m)
	if err != nil {
		return 0, err
	}
	return len(hits), nil
}

func (s *Store) SearchGrouped(m query.Match, limit, offset int) ([]store.DocumentHit, error) {
	hits, err := s.groupedHits(m)
	if err != nil {
		return nil, err
	}

	if offset >= len(hits) {
		return nil, nil
	}
	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end], nil
}

func (s *Store) groupedHits(m query.Match) ([]store.DocumentHit, error) {
	if s == nil || s.idx == nil {
		return nil, fmt.Errorf("store is not open")
	}

	// Page through every matching page so hit counts stay exact on
	// corpora larger than one batch.
	counts := map[string]*store.DocumentHit{}
	for from := 0; ; from += groupFetchPage {
		req := bleve.NewSearchRequestOptions(scopedQuery(m, ""), groupFetchPage, from, false)
		req.Fields = []string{"doc_id", "title"}

		res, err := s.idx.Search(req)
		if err != nil {
			return nil, fmt.Errorf("search grouped: %w", err)
		}

		for _, hit := range res.Hits {
			docID, _ := hit.Fields["doc_id"].(string)
			if docID == "" {
				continue
			}
			h := counts[docID]
			if h == nil {
				title, _ := hit.Fields["title"].(string)
				h = &store.DocumentHit{ID: docID, Title: title}
				counts[docID] = h
			}
			h.HitCount++
		}

		if len(res.Hits) == 0 || uint64(from+len(res.Hits)) >= res.Total {
			break
		}
	}

	out := make([]store.DocumentHit, 0, len(counts))
	for _, h := range counts {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HitCount != out[j].HitCount {
			return out[i].HitCount > out[j].HitCount
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (s *Store) CountPages(m query.Match, docID string) (int, error) {
	if s == nil || s.idx == nil {
		return 0, fmt.Errorf("store is not open")
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return 0, fmt.Errorf("document id is required")
	}

	req := bleve.NewSearchRequestOptions(scopedQuery(m, docID), 0, 0, false)
	res, err := s.idx.Search(req)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return int(res.Total), nil
}

func (s *Store) SearchPages(m query.Match, docID string, limit, offset int) ([]store.PageHit, error) {
	if s == nil || s.idx == nil {
		return nil, fmt.Errorf("store is not open")
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, fmt.Errorf("document id is required")
	}

	req := bleve.NewSearchRequestOptions(scopedQuery(m, docID), limit, offset, false)
	req.Fields = []string{"doc_id", "title", "page"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.Fields = []string{"content"}

	res, err := s.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}

	hits := make([]store.PageHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		h := store.PageHit{
			// Bleve scores rank higher-better; negate so lower is
			// better like the FTS5 backend.
			Score: -hit.Score,
		}
		if v, ok := hit.Fields["doc_id"].(string); ok {
			h.ID = v
		}
		if v, ok := hit.Fields["title"].(string); ok {
			h.Title = v
		}
		if v, ok := toInt(hit.Fields["page"]); ok {
			h.Page = v
		}
		if hit.Fragments != nil {
			if frags := hit.Fragments["content"]; len(frags) > 0 {
				h.Snippet = s.normalizeSnippet(frags[0])
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// normalizeSnippet rewrites the html highlighter's <mark> tags to the
// configured markers and squashes fragment whitespace.
func (s *Store) normalizeSnippet(frag string) string {
	frag = strings.ReplaceAll(frag, "<mark>", s.snip.Start)
	frag = strings.ReplaceAll(frag, "</mark>", s.snip.End)
	frag = strings.Join(strings.Fields(frag), " ")
	return strings.TrimSpace(frag)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
