package app

import (
	"strings"

	"contracts-rag/internal/pkg/textextract"
)

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 64
)

type pageChunk struct {
	page  int
	index int
	text  string
}

// splitPages chunks each form-feed separated page on its own so every chunk can be
// attributed to one page. Blank chunks are dropped; index counts across pages.
func splitPages(text string, size, overlap int) []pageChunk {
	var out []pageChunk
	for i, page := range strings.Split(text, textextract.PageSeparator) {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		for _, c := range chunkText(page, size, overlap) {
			if strings.TrimSpace(c) == "" {
				continue
			}
			out = append(out, pageChunk{page: i + 1, index: len(out), text: c})
		}
	}
	return out
}

// chunkText splits text into overlapping chunks by rune count.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
		i += size - overlap
	}
	return chunks
}

// snippet truncates s to n runes, marking the cut with "...".
func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
