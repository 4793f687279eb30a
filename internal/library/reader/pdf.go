package reader

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
)

// PDF reads PDF documents via ledongthuc/pdf.
type PDF struct{}

type pdfDocument struct {
	f *os.File
	r *pdf.Reader
}

func (PDF) Open(path string) (doc Document, err error) {
	// The parser panics on some malformed files; fold that into the
	// unreadable-document contract.
	defer func() {
		if p := recover(); p != nil {
			doc = nil
			err = fmt.Errorf("open pdf %s: parser panic: %v: %w", path, p, ErrUnreadable)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %v: %w", path, err, ErrUnreadable)
	}
	return &pdfDocument{f: f, r: r}, nil
}

func (d *pdfDocument) PageCount() int {
	return d.r.NumPage()
}

func (d *pdfDocument) PageText(page int) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text = ""
			err = fmt.Errorf("extract page %d: parser panic: %v: %w", page, p, ErrUnreadable)
		}
	}()

	if page < 1 || page > d.r.NumPage() {
		return "", fmt.Errorf("page %d out of range: %w", page, ErrUnreadable)
	}
	p := d.r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	raw, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract page %d: %v: %w", page, err, ErrUnreadable)
	}
	return raw, nil
}

func (d *pdfDocument) Close() error {
	return d.f.Close()
}
