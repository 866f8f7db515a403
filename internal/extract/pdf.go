package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF extracts page text from PDF bytes. Pages whose embedded text
// layer falls below the minimum word count are retried through OCR when an
// OCR engine is configured; OCR runs are bounded by the extractor's OCR
// semaphore so heavy recognition cannot starve lightweight extractions.
func (e *Extractor) extractPDF(ctx context.Context, content []byte) (Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Result{}, fmt.Errorf("open PDF: %w", err)
	}
	var buf strings.Builder
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return Result{}, fmt.Errorf("extract page %d: %w", i, err)
		}
		if countWords(text) < e.minWordsPerPage && e.ocr != nil {
			recognized, ocrErr := e.recognizePage(ctx, content, i)
			if ocrErr == nil && countWords(recognized) > countWords(text) {
				text = recognized
			}
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(text)
	}
	return Result{Text: strings.TrimSpace(buf.String()), Kind: KindPDF}, nil
}

func (e *Extractor) recognizePage(ctx context.Context, content []byte, page int) (string, error) {
	select {
	case e.ocrSem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-e.ocrSem }()
	return e.ocr.RecognizePage(ctx, content, page)
}
