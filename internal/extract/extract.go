// Package extract provides text extraction from the document formats a
// corpus may contain. Dispatch is by file kind through a handler table, so
// adding a format means adding one table entry.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind identifies a document format family.
type Kind string

const (
	KindPlain  Kind = "plain"
	KindWord   Kind = "word"
	KindPDF    Kind = "pdf"
	KindSheet  Kind = "sheet"
	KindSlides Kind = "slides"
)

// KindForPath maps a file extension to its format kind.
// Unknown extensions are treated as plain text.
func KindForPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindWord
	case ".xlsx":
		return KindSheet
	case ".pptx":
		return KindSlides
	default:
		return KindPlain
	}
}

// ExtractionError is a per-file extraction failure. Batch processing records
// it against the offending file and continues with the rest of the batch.
type ExtractionError struct {
	Path string
	Kind Kind
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Result is the output of extracting one file.
type Result struct {
	Text     string
	Kind     Kind
	Encoding string // source charset for plain text, empty otherwise
}

type handler func(ctx context.Context, e *Extractor, content []byte) (Result, error)

// Extractor extracts plain text from document files.
type Extractor struct {
	handlers        map[Kind]handler
	ocr             OCR
	ocrSem          chan struct{}
	minWordsPerPage int
	maxFileSize     int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOCR enables the OCR fallback for image-only PDF pages, bounded to the
// given number of concurrent recognitions.
func WithOCR(ocr OCR, workers int) Option {
	return func(e *Extractor) {
		if ocr == nil || workers <= 0 {
			return
		}
		e.ocr = ocr
		e.ocrSem = make(chan struct{}, workers)
	}
}

// WithMinWordsPerPage sets the word-count threshold below which a PDF page is
// considered image-only and handed to OCR.
func WithMinWordsPerPage(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.minWordsPerPage = n
		}
	}
}

// WithMaxFileSize rejects files larger than n bytes before reading them fully.
func WithMaxFileSize(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxFileSize = n
		}
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		minWordsPerPage: 30,
	}
	e.handlers = map[Kind]handler{
		KindPlain:  func(_ context.Context, _ *Extractor, c []byte) (Result, error) { return extractPlain(c) },
		KindWord:   func(_ context.Context, _ *Extractor, c []byte) (Result, error) { return extractWord(c) },
		KindSheet:  func(_ context.Context, _ *Extractor, c []byte) (Result, error) { return extractSheet(c) },
		KindSlides: func(_ context.Context, _ *Extractor, c []byte) (Result, error) { return extractSlides(c) },
		KindPDF: func(ctx context.Context, ex *Extractor, c []byte) (Result, error) {
			return ex.extractPDF(ctx, c)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the file at path and returns its extracted text.
// Failures are wrapped in *ExtractionError so callers can attribute them to
// the file without aborting sibling extractions.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	kind := KindForPath(path)
	if e.maxFileSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return Result{}, &ExtractionError{Path: path, Kind: kind, Err: err}
		}
		if info.Size() > e.maxFileSize {
			return Result{}, &ExtractionError{
				Path: path, Kind: kind,
				Err: fmt.Errorf("file size %d exceeds limit %d", info.Size(), e.maxFileSize),
			}
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, &ExtractionError{Path: path, Kind: kind, Err: fmt.Errorf("read file: %w", err)}
	}
	res, err := e.ExtractBytes(ctx, content, kind)
	if err != nil {
		return Result{}, &ExtractionError{Path: path, Kind: kind, Err: err}
	}
	return res, nil
}

// ExtractBytes extracts text from content of the given kind.
func (e *Extractor) ExtractBytes(ctx context.Context, content []byte, kind Kind) (Result, error) {
	h, ok := e.handlers[kind]
	if !ok {
		h = e.handlers[KindPlain]
	}
	return h(ctx, e, content)
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
