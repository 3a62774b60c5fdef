package refine

import (
	"fmt"
	"strings"
)

const (
	// Window over the page history shown to the decoder: the first
	// historyHead entries plus the last historyTail when the page has
	// more than historyHead+historyTail chunks.
	historyHead = 5
	historyTail = 15
)

// startOfDocument is the previous-chunk context for the first chunk.
const startOfDocument = "None (Start of Document)"

type historyEntry struct {
	index    int
	abstract string
	summary  string
}

// pageHistory accumulates per-chunk abstracts and summaries in chunk
// order. The order is explicit in the slice; nothing relies on map
// iteration.
type pageHistory struct {
	entries []historyEntry
}

func (h *pageHistory) add(index int, abstract, summary string) {
	h.entries = append(h.entries, historyEntry{index: index, abstract: abstract, summary: summary})
}

// context renders the history window for the prompt.
func (h *pageHistory) context() string {
	if len(h.entries) == 0 {
		return startOfDocument
	}

	window := h.entries
	if len(window) > historyHead+historyTail {
		head := window[:historyHead]
		tail := window[len(window)-historyTail:]
		window = append(append([]historyEntry(nil), head...), tail...)
	}

	var b strings.Builder
	for _, e := range window {
		fmt.Fprintf(&b, "- Chunk %d:\n\tAbstract: %s\n\tSummary: %s\n", e.index, e.abstract, e.summary)
	}
	return b.String()
}
