// Package chunker splits extracted document text into overlapping,
// sentence-aligned segments sized for embedding.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/opencampus/docqa/internal/models"
)

// Chunker splits text into chunks bounded by chunkSize characters, closing a
// chunk only once it has reached minChunkSize. Consecutive chunks from the
// same document share the last overlap characters of the prior chunk's tail.
type Chunker struct {
	chunkSize    int
	minChunkSize int
	overlap      int
}

// NewChunker creates a chunker with the given limits (in characters).
func NewChunker(chunkSize, minChunkSize, overlap int) *Chunker {
	if minChunkSize > chunkSize {
		minChunkSize = chunkSize
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Chunker{
		chunkSize:    chunkSize,
		minChunkSize: minChunkSize,
		overlap:      overlap,
	}
}

// Chunk splits text into chunks carrying the document's metadata and a
// per-document sequence index. Chunk IDs are deterministic (docID:seq), so
// identical input always produces identical chunks.
func (c *Chunker) Chunk(docID, text string, meta models.ChunkMetadata) []models.Chunk {
	sentences := c.splitLong(splitSentences(text))
	if len(sentences) == 0 {
		return nil
	}

	var chunks []models.Chunk
	var cur strings.Builder
	seq := 0

	flush := func() {
		chunkText := strings.TrimSpace(cur.String())
		if chunkText == "" {
			return
		}
		chunks = append(chunks, models.Chunk{
			ID:         fmt.Sprintf("%s:%d", docID, seq),
			DocumentID: docID,
			Text:       chunkText,
			Seq:        seq,
			Metadata:   meta,
		})
		seq++
	}

	for _, sentence := range sentences {
		needed := len(sentence)
		if cur.Len() > 0 {
			needed++ // joining space
		}
		if cur.Len() > 0 && cur.Len()+needed > c.chunkSize && cur.Len() >= c.minChunkSize {
			tail := overlapTail(cur.String(), c.overlap)
			flush()
			cur.Reset()
			cur.WriteString(tail)
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	flush()
	return chunks
}

// splitLong hard-splits any sentence longer than chunkSize so no single
// sentence can produce an oversized chunk.
func (c *Chunker) splitLong(sentences []string) []string {
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		for len(s) > c.chunkSize {
			cut := c.chunkSize
			for cut > 0 && !utf8Start(s[cut]) {
				cut--
			}
			if cut == 0 {
				cut = c.chunkSize
			}
			out = append(out, strings.TrimSpace(s[:cut]))
			s = strings.TrimSpace(s[cut:])
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

// overlapTail returns the last n characters of text, trimmed to start on a
// word boundary where possible.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	tail := string(runes[len(runes)-n:])
	if idx := strings.IndexFunc(tail, unicode.IsSpace); idx >= 0 {
		tail = strings.TrimSpace(tail[idx:])
	}
	return tail
}

// splitSentences breaks text on sentence-final punctuation followed by
// whitespace, and on newlines. Whitespace-only segments are dropped.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
		if isSentenceEnd(r) && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
