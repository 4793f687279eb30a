package scan

import (
	"bufio"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

type ignoreMatcher struct {
	matcher gitignore.Matcher
}

// loadIgnoreMatcher reads gitignore-style patterns from fileName inside
// dir. A missing pattern file means nothing is ignored.
func loadIgnoreMatcher(dir string, fileName string) (*ignoreMatcher, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return &ignoreMatcher{}, nil
	}

	fs := osfs.New(dir)
	f, err := fs.Open(fileName)
	if err != nil {
		return &ignoreMatcher{}, nil
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return &ignoreMatcher{}, nil
	}
	return &ignoreMatcher{matcher: gitignore.NewMatcher(patterns)}, nil
}

func (m *ignoreMatcher) isIgnored(name string) bool {
	if m == nil || m.matcher == nil {
		return false
	}
	return m.matcher.Match([]string{name}, false)
}
