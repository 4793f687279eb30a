package reader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnreadable marks a document the reader could not open or extract.
// The sync engine treats it as non-fatal: the document keeps its prior
// index state and the pass moves on.
var ErrUnreadable = errors.New("unreadable document")

// Document is an open, page-addressable document.
type Document interface {
	// PageCount is the number of pages, >= 0.
	PageCount() int

	// PageText extracts plain text for a 1-based page number.
	PageText(page int) (string, error)

	Close() error
}

// Reader opens documents for text extraction.
type Reader interface {
	Open(path string) (Document, error)
}

// ForExtension returns the reader for a filename, or an error for
// formats with no extractor.
func ForExtension(name string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return PDF{}, nil
	case ".txt":
		return Text{}, nil
	default:
		return nil, fmt.Errorf("no reader for %s: %w", name, ErrUnreadable)
	}
}

// CleanText collapses whitespace runs to single spaces and trims the
// result. Pages that clean to "" carry no searchable signal and are
// not indexed.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
