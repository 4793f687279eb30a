package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/failab-tohoku/failab-library/internal/index/sqlite"
	"github.com/failab-tohoku/failab-library/internal/index/store"
	"github.com/failab-tohoku/failab-library/internal/query"
)

type countingSyncer struct {
	calls int
}

func (s *countingSyncer) TryRunPass(ctx context.Context, force bool) (bool, error) {
	s.calls++
	return true, nil
}

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "index.db"), store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seed(t *testing.T, st store.Store, id string, pages ...string) {
	t.Helper()
	ps := make([]store.Page, 0, len(pages))
	for i, text := range pages {
		ps = append(ps, store.Page{Number: i + 1, Text: text})
	}
	if err := st.ReplaceDocument(id, 1, len(pages), ps); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestCorpusRankingAndShape(t *testing.T) {
	st := openTestStore(t)
	seed(t, st, "b.pdf", "invoice one", "invoice two")
	seed(t, st, "a.pdf", "invoice only once", "nothing here")
	seed(t, st, "c.pdf", "no match at all")

	syncer := &countingSyncer{}
	svc := New(st, syncer)

	res, err := svc.Corpus(context.Background(), "invoice", 1, 20)
	if err != nil {
		t.Fatalf("Corpus: %v", err)
	}
	if syncer.calls != 1 {
		t.Fatalf("expected one sync attempt, got %d", syncer.calls)
	}
	if res.Total != 2 || res.TotalPages != 1 {
		t.Fatalf("total=%d totalPages=%d, want 2/1", res.Total, res.TotalPages)
	}
	if len(res.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(res.Results))
	}
	// b.pdf has two matching pages and outranks a.pdf's one.
	if res.Results[0].ID != "b.pdf" || res.Results[0].HitCount != 2 {
		t.Fatalf("first result = %+v", res.Results[0])
	}
	if res.Results[1].ID != "a.pdf" {
		t.Fatalf("second result = %+v", res.Results[1])
	}
}

func TestCorpusNoMatchesEmptySlice(t *testing.T) {
	st := openTestStore(t)
	seed(t, st, "a.pdf", "alpha")
	svc := New(st, nil)

	res, err := svc.Corpus(context.Background(), "zzzginkgo", 1, 20)
	if err != nil {
		t.Fatalf("Corpus: %v", err)
	}
	if res.Total != 0 || res.TotalPages != 0 {
		t.Fatalf("total=%d totalPages=%d, want 0/0", res.Total, res.TotalPages)
	}
	if res.Results == nil || len(res.Results) != 0 {
		t.Fatalf("results = %#v, want empty non-nil slice", res.Results)
	}
}

func TestDocumentSearchSnippetsAndTitle(t *testing.T) {
	st := openTestStore(t)
	seed(t, st, "report.pdf", "annual budget summary", "budget details and budget notes")
	seed(t, st, "other.pdf", "budget elsewhere")

	svc := New(st, nil)
	res, err := svc.Document(context.Background(), "budget", "report.pdf", 1, 20)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("total = %d, want 2 (scoped to report.pdf)", res.Total)
	}
	if res.Title != "report.pdf" {
		t.Fatalf("title = %q", res.Title)
	}
	for _, hit := range res.Results {
		if hit.ID != "report.pdf" {
			t.Fatalf("hit leaked from other document: %+v", hit)
		}
		if hit.Snippet == "" {
			t.Fatalf("missing snippet for page %d", hit.Page)
		}
	}
	// Page 2 mentions the term twice, so it ranks first.
	if res.Results[0].Page != 2 {
		t.Fatalf("best hit page = %d, want 2", res.Results[0].Page)
	}
}

func TestDocumentSearchZeroHitsTitleFallsBack(t *testing.T) {
	st := openTestStore(t)
	svc := New(st, nil)

	res, err := svc.Document(context.Background(), "anything", "ghost.pdf", 1, 20)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if res.Title != "ghost.pdf" {
		t.Fatalf("title = %q, want fallback to document id", res.Title)
	}
	if res.Total != 0 || len(res.Results) != 0 {
		t.Fatalf("unexpected hits: %+v", res)
	}
}

func TestPaginationValidation(t *testing.T) {
	st := openTestStore(t)
	svc := New(st, nil)
	ctx := context.Background()

	for _, tc := range []struct{ page, perPage int }{
		{0, 20}, {-1, 20}, {1, 0}, {1, -5},
	} {
		if _, err := svc.Corpus(ctx, "x", tc.page, tc.perPage); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("page=%d perPage=%d: err = %v, want ErrInvalidArgument", tc.page, tc.perPage, err)
		}
		if _, err := svc.Document(ctx, "x", "a.pdf", tc.page, tc.perPage); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("document page=%d perPage=%d: err = %v", tc.page, tc.perPage, err)
		}
	}
}

func TestPerPageClampedNotRejected(t *testing.T) {
	st := openTestStore(t)
	svc := New(st, nil)

	res, err := svc.Corpus(context.Background(), "x", 1, 500)
	if err != nil {
		t.Fatalf("Corpus: %v", err)
	}
	if res.PerPage != 100 {
		t.Fatalf("perPage = %d, want clamped 100", res.PerPage)
	}
}

func TestEmptyQueryRejectedBeforeIndex(t *testing.T) {
	st := openTestStore(t)
	syncer := &countingSyncer{}
	svc := New(st, syncer)

	if _, err := svc.Corpus(context.Background(), "   ", 1, 20); !errors.Is(err, query.ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
	if syncer.calls != 0 {
		t.Fatalf("empty query triggered a sync attempt")
	}
}

func TestTotalPagesCeil(t *testing.T) {
	for _, tc := range []struct{ total, perPage, want int }{
		{45, 20, 3},
		{40, 20, 2},
		{1, 20, 1},
		{0, 20, 0},
		{100, 100, 1},
		{101, 100, 2},
	} {
		if got := totalPages(tc.total, tc.perPage); got != tc.want {
			t.Fatalf("totalPages(%d, %d) = %d, want %d", tc.total, tc.perPage, got, tc.want)
		}
	}
}

func TestCorpusPagination(t *testing.T) {
	st := openTestStore(t)
	seed(t, st, "a.pdf", "widget")
	seed(t, st, "b.pdf", "widget", "widget")
	seed(t, st, "c.pdf", "widget", "widget", "widget")

	svc := New(st, nil)
	res, err := svc.Corpus(context.Background(), "widget", 2, 2)
	if err != nil {
		t.Fatalf("Corpus: %v", err)
	}
	if res.Total != 3 || res.TotalPages != 2 {
		t.Fatalf("total=%d totalPages=%d, want 3/2", res.Total, res.TotalPages)
	}
	if len(res.Results) != 1 || res.Results[0].ID != "a.pdf" {
		t.Fatalf("page 2 = %+v, want just a.pdf", res.Results)
	}
}
