// Package ingest converts uploaded PDF bytes into the text chunks that get embedded.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoExtractableText is returned when a document yields no text (e.g. scanned images).
var ErrNoExtractableText = errors.New("no text could be extracted from the PDF")

// Document is the result of processing one upload.
type Document struct {
	Pages  int      // Number of pages in the PDF
	Text   string   // Page texts joined in order
	Chunks []string // Chunks in document order
}

// Pipeline runs extraction followed by splitting.
type Pipeline struct {
	extractor Extractor
	splitter  *Splitter
}

// NewPipeline creates a pipeline. A nil splitter uses the default chunk sizes.
func NewPipeline(extractor Extractor, splitter *Splitter) *Pipeline {
	if splitter == nil {
		splitter = NewSplitter()
	}
	return &Pipeline{extractor: extractor, splitter: splitter}
}

// Process extracts and chunks data. Any failure aborts the whole document.
func (p *Pipeline) Process(ctx context.Context, data []byte) (*Document, error) {
	pages, err := p.extractor.ExtractPages(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	text, err := ExtractText(pages)
	if err != nil {
		return nil, err
	}

	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		return nil, ErrNoExtractableText
	}

	return &Document{
		Pages:  len(pages),
		Text:   text,
		Chunks: chunks,
	}, nil
}

// ExtractText joins page texts in page order with a newline between pages, so
// the last word of one page never fuses with the first word of the next.
// It returns ErrNoExtractableText if the result holds nothing but whitespace.
func ExtractText(pages []string) (string, error) {
	text := strings.Join(pages, "\n")
	if strings.TrimSpace(text) == "" {
		return "", ErrNoExtractableText
	}
	return text, nil
}
