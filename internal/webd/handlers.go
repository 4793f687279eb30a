package webd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/failab-tohoku/failab-library/internal/auth"
	"github.com/failab-tohoku/failab-library/internal/query"
	"github.com/failab-tohoku/failab-library/internal/search"
)

// DocumentLister enumerates the current on-disk document set for the
// listing endpoint.
type DocumentLister interface {
	Scan() (map[string]int64, []string, error)
}

// Handlers wires the HTTP surface to the auth, sync, and search
// layers.
type Handlers struct {
	Auth     *auth.Authenticator
	Search   *search.Service
	Syncer   search.Syncer
	Lister   DocumentLister
	Library  string
	ThumbDir string
	Logger   *slog.Logger
}

func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("GET /pdfs", h.requireAuth(h.handleListDocuments))
	mux.HandleFunc("GET /pdf/{id}", h.requireAuth(h.handleGetDocument))
	mux.HandleFunc("GET /thumbnail/{name}", h.requireAuth(h.handleGetThumbnail))
	mux.HandleFunc("GET /search", h.requireAuth(h.handleCorpusSearch))
	mux.HandleFunc("GET /search/pdf", h.requireAuth(h.handleDocumentSearch))
	return mux
}

func (h *Handlers) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	token, err := h.Auth.Login(username, password)
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	case err != nil:
		h.log().Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer"})
}

// requireAuth rejects requests without a valid bearer token.
func (h *Handlers) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := h.Auth.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

type documentEntry struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

func (h *Handlers) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if h.Syncer != nil {
		_, _ = h.Syncer.TryRunPass(r.Context(), false)
	}

	docs, _, err := h.Lister.Scan()
	if err != nil {
		h.log().Error("document listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "library unavailable")
		return
	}

	entries := make([]documentEntry, 0, len(docs))
	for id := range docs {
		entry := documentEntry{ID: id, Title: id}
		// Thumbnails are pre-rendered out of band; only advertise the
		// ones that actually exist.
		thumb := thumbnailName(id)
		if st, err := os.Stat(filepath.Join(h.ThumbDir, thumb)); err == nil && !st.IsDir() {
			entry.ThumbnailURL = "/thumbnail/" + thumb
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	path, ok := resolveSafePath(h.Library, r.PathValue("id"), ".pdf")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}

func (h *Handlers) handleGetThumbnail(w http.ResponseWriter, r *http.Request) {
	path, ok := resolveSafePath(h.ThumbDir, r.PathValue("name"), ".png")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

func (h *Handlers) handleCorpusSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	page, perPage, ok := pagination(w, r)
	if !ok {
		return
	}

	res, err := h.Search.Corpus(r.Context(), q, page, perPage)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) handleDocumentSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	docID := r.URL.Query().Get("pdf_id")
	if docID == "" {
		writeError(w, http.StatusBadRequest, "pdf_id is required")
		return
	}
	page, perPage, ok := pagination(w, r)
	if !ok {
		return
	}

	res, err := h.Search.Document(r.Context(), q, docID, page, perPage)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, query.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query is required")
	default:
		h.log().Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// pagination parses page/per_page with the original defaults of 1/20.
// Non-numeric values are a 400; range checks live in the service.
func pagination(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	page, ok := intParam(w, r, "page", 1)
	if !ok {
		return 0, 0, false
	}
	perPage, ok := intParam(w, r, "per_page", 20)
	if !ok {
		return 0, 0, false
	}
	return page, perPage, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return v, true
}

// resolveSafePath confines name to baseDir: no path separators, the
// expected suffix, and the resolved path still inside baseDir after
// symlinks. Anything else reads as "not found".
func resolveSafePath(baseDir, name, ext string) (string, bool) {
	if name == "" || filepath.Base(name) != name {
		return "", false
	}
	if !strings.HasSuffix(strings.ToLower(name), ext) {
		return "", false
	}

	base, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return "", false
	}
	path, err := filepath.EvalSymlinks(filepath.Join(base, name))
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(path, base+string(os.PathSeparator)) {
		return "", false
	}
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return "", false
	}
	return path, true
}

func thumbnailName(id string) string {
	ext := filepath.Ext(id)
	return strings.TrimSuffix(id, ext) + ".png"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
