package webd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/failab-tohoku/failab-library/internal/auth"
	"github.com/failab-tohoku/failab-library/internal/index/sqlite"
	"github.com/failab-tohoku/failab-library/internal/index/store"
	"github.com/failab-tohoku/failab-library/internal/library/scan"
	"github.com/failab-tohoku/failab-library/internal/search"
)

type testEnv struct {
	h        *Handlers
	srv      *httptest.Server
	library  string
	thumbDir string
	store    store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	library := t.TempDir()
	thumbDir := t.TempDir()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "index.db"), store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	scanner, err := scan.New(library, []string{".pdf"}, "")
	if err != nil {
		t.Fatalf("scanner: %v", err)
	}

	a, err := auth.New("test-secret", []auth.User{
		{Username: "alice", Password: "alicepw", Role: auth.RoleUser},
	}, auth.Options{})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	h := &Handlers{
		Auth:     a,
		Search:   search.New(st, nil),
		Lister:   scanner,
		Library:  library,
		ThumbDir: thumbDir,
	}
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &testEnv{h: h, srv: srv, library: library, thumbDir: thumbDir, store: st}
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	resp, err := http.PostForm(e.srv.URL+"/login", url.Values{
		"username": {"alice"},
		"password": {"alicepw"},
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if body.TokenType != "bearer" || body.AccessToken == "" {
		t.Fatalf("login body = %+v", body)
	}
	return body.AccessToken
}

func (e *testEnv) get(t *testing.T, token, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	e := newTestEnv(t)
	resp, err := http.PostForm(e.srv.URL+"/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestEndpointsRequireBearerToken(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/pdfs", "/pdf/a.pdf", "/thumbnail/a.png", "/search?q=x", "/search/pdf?q=x&pdf_id=a.pdf"} {
		resp := e.get(t, "", path)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without token: status = %d, want 401", path, resp.StatusCode)
		}

		resp = e.get(t, "garbage", path)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s with bad token: status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestListDocuments(t *testing.T) {
	e := newTestEnv(t)
	writeFile(t, e.library, "b.pdf", "x")
	writeFile(t, e.library, "a.pdf", "x")
	writeFile(t, e.library, "notes.txt", "x")
	writeFile(t, e.thumbDir, "a.png", "\x89PNG")

	token := e.login(t)
	resp := e.get(t, token, "/pdfs")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var entries []documentEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].ID != "a.pdf" || entries[1].ID != "b.pdf" {
		t.Fatalf("entries not sorted: %+v", entries)
	}
	if entries[0].ThumbnailURL != "/thumbnail/a.png" {
		t.Fatalf("thumbnail url = %q", entries[0].ThumbnailURL)
	}
	// b.pdf has no rendered thumbnail yet, so no URL is advertised.
	if entries[1].ThumbnailURL != "" {
		t.Fatalf("thumbnail url for b.pdf = %q, want empty", entries[1].ThumbnailURL)
	}
}

func TestGetDocument(t *testing.T) {
	e := newTestEnv(t)
	writeFile(t, e.library, "report.pdf", "%PDF-fake")
	token := e.login(t)

	resp := e.get(t, token, "/pdf/report.pdf")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content type = %q", got)
	}

	resp = e.get(t, token, "/pdf/missing.pdf")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing file: status = %d, want 404", resp.StatusCode)
	}

	// Wrong extension must 404 even if the file exists.
	writeFile(t, e.library, "notes.txt", "x")
	resp = e.get(t, token, "/pdf/notes.txt")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("wrong suffix: status = %d, want 404", resp.StatusCode)
	}
}

func TestThumbnailServedOnlyWhenPresent(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)

	resp := e.get(t, token, "/thumbnail/a.png")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing thumbnail: status = %d, want 404", resp.StatusCode)
	}

	writeFile(t, e.thumbDir, "a.png", "\x89PNG")
	resp = e.get(t, token, "/thumbnail/a.png")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Fatalf("content type = %q", got)
	}
}

func TestResolveSafePathRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	outside := t.TempDir()
	writeFile(t, outside, "secret.pdf", "x")
	writeFile(t, base, "ok.pdf", "x")

	if _, ok := resolveSafePath(base, "../secret.pdf", ".pdf"); ok {
		t.Fatalf("parent traversal accepted")
	}
	if _, ok := resolveSafePath(base, "sub/ok.pdf", ".pdf"); ok {
		t.Fatalf("nested path accepted")
	}
	if _, ok := resolveSafePath(base, "ok.txt", ".pdf"); ok {
		t.Fatalf("wrong suffix accepted")
	}
	if _, ok := resolveSafePath(base, "", ".pdf"); ok {
		t.Fatalf("empty name accepted")
	}
	if path, ok := resolveSafePath(base, "ok.pdf", ".pdf"); !ok || path == "" {
		t.Fatalf("valid name rejected")
	}

	// A symlink escaping the base directory must not resolve.
	if err := os.Symlink(filepath.Join(outside, "secret.pdf"), filepath.Join(base, "link.pdf")); err == nil {
		if _, ok := resolveSafePath(base, "link.pdf", ".pdf"); ok {
			t.Fatalf("escaping symlink accepted")
		}
	}
}

func TestCorpusSearchEndpoint(t *testing.T) {
	e := newTestEnv(t)
	if err := e.store.ReplaceDocument("a.pdf", 1, 1, []store.Page{{Number: 1, Text: "quarterly invoice"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	token := e.login(t)

	resp := e.get(t, token, "/search?q=invoice")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res search.CorpusResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Total != 1 || res.Count != 1 || res.Results[0].ID != "a.pdf" {
		t.Fatalf("result = %+v", res)
	}
	if res.Page != 1 || res.PerPage != 20 {
		t.Fatalf("defaults not applied: page=%d per_page=%d", res.Page, res.PerPage)
	}
}

func TestDocumentSearchEndpoint(t *testing.T) {
	e := newTestEnv(t)
	if err := e.store.ReplaceDocument("a.pdf", 1, 2, []store.Page{
		{Number: 1, Text: "nothing"},
		{Number: 2, Text: "quarterly invoice totals"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	token := e.login(t)

	resp := e.get(t, token, "/search/pdf?q=invoice&pdf_id=a.pdf")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res search.DocumentResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Total != 1 || len(res.Results) != 1 || res.Results[0].Page != 2 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Results[0].Snippet, "[invoice]") {
		t.Fatalf("snippet = %q", res.Results[0].Snippet)
	}
}

func TestSearchValidationErrors(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)

	for _, path := range []string{
		"/search?q=x&page=0",
		"/search?q=x&per_page=0",
		"/search?q=x&page=abc",
		"/search?q=%20",
		"/search/pdf?q=x",
	} {
		resp := e.get(t, token, path)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, resp.StatusCode)
		}
	}
}
