package reader

import (
	"fmt"
	"os"
	"strings"
)

// Text reads plain-text documents. Form feeds split pages; a file
// without any is a single-page document.
type Text struct{}

type textDocument struct {
	pages []string
}

func (Text) Open(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open text %s: %v: %w", path, err, ErrUnreadable)
	}
	return &textDocument{pages: strings.Split(string(b), "\f")}, nil
}

func (d *textDocument) PageCount() int {
	return len(d.pages)
}

func (d *textDocument) PageText(page int) (string, error) {
	if page < 1 || page > len(d.pages) {
		return "", fmt.Errorf("page %d out of range: %w", page, ErrUnreadable)
	}
	return d.pages[page-1], nil
}

func (d *textDocument) Close() error { return nil }
