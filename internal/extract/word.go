package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// wordDocumentXMLPath is the path to the main document body inside a .docx zip.
const wordDocumentXMLPath = "word/document.xml"

// wParagraph matches one <w:p>...</w:p> paragraph, attributes included.
var wParagraph = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)

// wtTag matches <w:t>text</w:t> with any attributes (e.g. xml:space="preserve").
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// extractWord extracts text from .docx bytes. DOCX is a ZIP containing
// word/document.xml (OOXML). Text nodes are gathered per paragraph and
// paragraphs joined with newlines, so table rows keep their separation.
// Matching <w:t> with attributes tolerated is deliberate: real-world
// documents carry rsid and xml:space attributes on most elements.
func extractWord(content []byte) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Result{}, fmt.Errorf("not a zip: %w", err)
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name != wordDocumentXMLPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Result{}, fmt.Errorf("open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return Result{}, fmt.Errorf("read %s: %w", f.Name, err)
		}
		_ = rc.Close()
		docXML = buf.Bytes()
		break
	}
	if docXML == nil {
		return Result{}, fmt.Errorf("%s not found", wordDocumentXMLPath)
	}

	var b strings.Builder
	for _, para := range wParagraph.FindAllString(string(docXML), -1) {
		parts := wtTag.FindAllStringSubmatch(para, -1)
		if len(parts) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		for i, p := range parts {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(p[1]))
		}
	}
	return Result{Text: strings.TrimSpace(b.String()), Kind: KindWord}, nil
}
