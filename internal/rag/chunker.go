package rag

import "strings"

const (
	// DefaultChunkSize is the target maximum chunk length in characters.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the number of trailing characters carried from
	// one chunk into the next to preserve context across boundaries.
	DefaultChunkOverlap = 50
)

// ChunkDocument splits document text into retrieval-sized chunks, respecting
// paragraph boundaries where possible. Paragraphs (blank-line separated) are
// greedily packed into chunks of at most maxSize characters; when a paragraph
// would overflow the current chunk, the chunk is closed and the next one is
// seeded with the trailing overlap characters of the previous chunk. A single
// paragraph longer than maxSize is emitted whole as its own oversized chunk —
// text is never truncated.
//
// The returned chunks carry the source name and zero-based ordinals. Chunking
// is pure: the same input always yields the same output.
func ChunkDocument(text, source string, maxSize, overlap int) []Chunk {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var pieces []string
	var buf string

	flush := func() {
		if buf != "" {
			pieces = append(pieces, buf)
			buf = ""
		}
	}

	for _, para := range paragraphs {
		if len(para) > maxSize {
			// Oversized paragraph: emit whole, never truncate.
			flush()
			pieces = append(pieces, para)
			continue
		}
		if buf == "" {
			buf = para
			continue
		}
		if len(buf)+2+len(para) <= maxSize {
			buf += "\n\n" + para
			continue
		}
		pieces = append(pieces, buf)
		tail := overlapTail(buf, overlap)
		if tail != "" && len(tail)+2+len(para) <= maxSize {
			buf = tail + "\n\n" + para
		} else {
			buf = para
		}
	}
	flush()

	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, Chunk{
			Text: p,
			Metadata: ChunkMetadata{
				Source:        source,
				Ordinal:       i,
				TotalInSource: len(pieces),
			},
		})
	}
	return chunks
}

// splitParagraphs breaks text on blank lines, trimming whitespace and
// dropping empty paragraphs.
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// overlapTail returns up to n trailing characters of s, preferring to start
// at a word boundary so the seed reads naturally.
func overlapTail(s string, n int) string {
	if n <= 0 || len(s) == 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	tail := s[len(s)-n:]
	if i := strings.IndexByte(tail, ' '); i >= 0 && i < len(tail)-1 {
		tail = tail[i+1:]
	}
	return strings.TrimSpace(tail)
}
