package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// slidePathPrefix is the path prefix for slide XML files inside a .pptx zip.
const slidePathPrefix = "ppt/slides/slide"

// atTag matches <a:t>text</a:t> with any attributes.
var atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

// extractSlides extracts text from .pptx bytes. PPTX is a ZIP containing
// ppt/slides/slideN.xml; every <a:t> text node on every slide is collected.
func extractSlides(content []byte) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Result{}, fmt.Errorf("not a zip: %w", err)
	}
	var buf strings.Builder
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, slidePathPrefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Result{}, fmt.Errorf("open %s: %w", f.Name, err)
		}
		var slideBuf bytes.Buffer
		if _, err := slideBuf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return Result{}, fmt.Errorf("read %s: %w", f.Name, err)
		}
		_ = rc.Close()
		for _, p := range atTag.FindAllStringSubmatch(slideBuf.String(), -1) {
			if buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(strings.TrimSpace(p[1]))
		}
	}
	return Result{Text: strings.TrimSpace(buf.String()), Kind: KindSlides}, nil
}
