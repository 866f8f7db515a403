package extract

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// charsetSampleSize is how many leading bytes are examined to guess the charset.
const charsetSampleSize = 1024

// extractPlain decodes content to UTF-8. Content that already is valid UTF-8
// passes through untouched; otherwise the charset is detected from a leading
// byte sample and decoded. If detection or decoding fails too, content is
// kept with invalid sequences replaced.
func extractPlain(content []byte) (Result, error) {
	if utf8.Valid(content) {
		return Result{Text: string(content), Kind: KindPlain, Encoding: "utf-8"}, nil
	}
	sample := content
	if len(sample) > charsetSampleSize {
		sample = sample[:charsetSampleSize]
	}
	enc, name, _ := charset.DetermineEncoding(sample, "")
	if enc != nil {
		decoded, _, err := transform.Bytes(enc.NewDecoder(), content)
		if err == nil && utf8.Valid(decoded) {
			return Result{Text: string(decoded), Kind: KindPlain, Encoding: name}, nil
		}
	}
	return Result{
		Text:     strings.ToValidUTF8(string(content), "�"),
		Kind:     KindPlain,
		Encoding: "utf-8",
	}, nil
}
