// Package search orchestrates one query end to end: a best-effort
// freshness pass, query compilation, and a paginated index lookup.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/failab-tohoku/failab-library/internal/index/store"
	"github.com/failab-tohoku/failab-library/internal/query"
)

// ErrInvalidArgument reports out-of-range pagination inputs. Empty
// queries surface as query.ErrEmptyQuery.
var ErrInvalidArgument = errors.New("invalid argument")

const maxPerPage = 100

// Syncer is the freshness hook run before every query. A nil Syncer
// skips the attempt; queries then run against the index as-is.
type Syncer interface {
	TryRunPass(ctx context.Context, force bool) (bool, error)
}

// CorpusResult is a grouped, document-level result page.
type CorpusResult struct {
	Query      string              `json:"query"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	Total      int                 `json:"total"`
	TotalPages int                 `json:"total_pages"`
	Count      int                 `json:"count"`
	Results    []store.DocumentHit `json:"results"`
}

// DocumentResult is a page-level result page scoped to one document.
type DocumentResult struct {
	Query      string          `json:"query"`
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
	Count      int             `json:"count"`
	Results    []store.PageHit `json:"results"`
}

type Service struct {
	st     store.Store
	syncer Syncer
}

func New(st store.Store, syncer Syncer) *Service {
	return &Service{st: st, syncer: syncer}
}

// Corpus searches every indexed document and groups hits per document,
// ranked by matching page count descending with title as tie-break.
func (s *Service) Corpus(ctx context.Context, raw string, page, perPage int) (*CorpusResult, error) {
	page, perPage, err := validatePagination(page, perPage)
	if err != nil {
		return nil, err
	}
	m, err := query.Compile(raw)
	if err != nil {
		return nil, err
	}
	s.ensureFresh(ctx)

	total, err := s.st.CountGrouped(m)
	if err != nil {
		return nil, fmt.Errorf("search count: %w", err)
	}
	hits, err := s.st.SearchGrouped(m, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("search grouped: %w", err)
	}
	if hits == nil {
		hits = []store.DocumentHit{}
	}
	return &CorpusResult{
		Query:      raw,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
		Count:      len(hits),
		Results:    hits,
	}, nil
}

// Document searches within one document, ranked best match first with
// a highlighted snippet per page.
func (s *Service) Document(ctx context.Context, raw, docID string, page, perPage int) (*DocumentResult, error) {
	page, perPage, err := validatePagination(page, perPage)
	if err != nil {
		return nil, err
	}
	m, err := query.Compile(raw)
	if err != nil {
		return nil, err
	}
	s.ensureFresh(ctx)

	total, err := s.st.CountPages(m, docID)
	if err != nil {
		return nil, fmt.Errorf("search count: %w", err)
	}
	hits, err := s.st.SearchPages(m, docID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("search pages: %w", err)
	}
	if hits == nil {
		hits = []store.PageHit{}
	}

	title := docID
	if len(hits) > 0 && hits[0].Title != "" {
		title = hits[0].Title
	}
	return &DocumentResult{
		Query:      raw,
		ID:         docID,
		Title:      title,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages(total, perPage),
		Count:      len(hits),
		Results:    hits,
	}, nil
}

// ensureFresh attempts a throttled sync pass. Failures only cost
// freshness, so they never fail the query.
func (s *Service) ensureFresh(ctx context.Context) {
	if s.syncer == nil {
		return
	}
	_, _ = s.syncer.TryRunPass(ctx, false)
}

// validatePagination rejects page or perPage below 1 and clamps
// perPage to its maximum rather than rejecting it.
func validatePagination(page, perPage int) (int, int, error) {
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be >= 1", ErrInvalidArgument)
	}
	if perPage < 1 {
		return 0, 0, fmt.Errorf("%w: per_page must be >= 1", ErrInvalidArgument)
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage, nil
}

func totalPages(total, perPage int) int {
	if total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
