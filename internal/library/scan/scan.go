package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner enumerates indexable documents in a library directory.
// Every Scan reflects the directory contents at call time; nothing is
// cached between calls.
type Scanner struct {
	dir        string
	exts       []string
	ignoreFile string
}

func New(dir string, extensions []string, ignoreFile string) (*Scanner, error) {
	dir = filepath.Clean(dir)
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("dir is required")
	}

	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	if len(exts) == 0 {
		exts = []string{".pdf"}
	}

	return &Scanner{dir: dir, exts: exts, ignoreFile: ignoreFile}, nil
}

func (s *Scanner) Dir() string { return s.dir }

// Scan returns document id -> mtime (unix seconds) for every indexable
// file currently in the directory. Documents whose derived key collides
// with another document's are returned in rejected instead; callers
// must neither index nor un-index those until the collision is fixed.
func (s *Scanner) Scan() (map[string]int64, []string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("scan library %s: %w", s.dir, err)
	}

	ig, err := loadIgnoreMatcher(s.dir, s.ignoreFile)
	if err != nil {
		return nil, nil, err
	}

	docs := map[string]int64{}
	byKey := map[string][]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !s.hasIndexableExt(name) {
			continue
		}
		if ig.isIgnored(name) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			// Deleted between ReadDir and stat; it will show up
			// (or not) on the next pass.
			continue
		}

		docs[name] = info.ModTime().Unix()
		key := DerivedKey(name)
		byKey[key] = append(byKey[key], name)
	}

	var rejected []string
	for _, ids := range byKey {
		if len(ids) < 2 {
			continue
		}
		for _, id := range ids {
			delete(docs, id)
			rejected = append(rejected, id)
		}
	}
	sort.Strings(rejected)

	return docs, rejected, nil
}

func (s *Scanner) hasIndexableExt(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range s.exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// DerivedKey is the extension-stripped, case-folded identity used for
// derived artifacts such as thumbnails. Two documents sharing a key
// would silently overwrite each other's artifacts, so the scanner
// rejects both.
func DerivedKey(id string) string {
	return strings.ToLower(strings.TrimSuffix(id, filepath.Ext(id)))
}
