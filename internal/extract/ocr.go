package extract

import "context"

// OCR recognizes text on a single PDF page. Implementations wrap an external
// recognition engine; tests substitute a fake. The engine is initialized
// explicitly at startup rather than lazily on first use, so a missing engine
// surfaces as a configuration error, not a mid-rebuild failure.
type OCR interface {
	RecognizePage(ctx context.Context, pdf []byte, page int) (string, error)
}

// OCRFunc adapts a function to the OCR interface.
type OCRFunc func(ctx context.Context, pdf []byte, page int) (string, error)

func (f OCRFunc) RecognizePage(ctx context.Context, pdf []byte, page int) (string, error) {
	return f(ctx, pdf, page)
}
