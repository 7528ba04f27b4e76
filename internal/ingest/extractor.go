package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrInvalidPDF is returned when the uploaded bytes cannot be parsed as a PDF.
var ErrInvalidPDF = errors.New("invalid PDF")

// Extractor turns a document into the plain text of each of its pages.
type Extractor interface {
	ExtractPages(ctx context.Context, data []byte) ([]string, error)
}

// PDFExtractor extracts page text with github.com/ledongthuc/pdf.
type PDFExtractor struct{}

var _ Extractor = PDFExtractor{}

// ExtractPages returns the text of every page in order. Pages without a
// content stream yield an empty string.
func (PDFExtractor) ExtractPages(ctx context.Context, data []byte) (pages []string, err error) {
	// The parser panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
