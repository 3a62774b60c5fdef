// Package chunker splits text into token-budgeted chunks on sentence
// boundaries.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dia-upm/muia-rag/internal/tokenizer"
)

// Splitter cuts text into chunks of at most MaxTokens tokens. Cuts land on
// sentence boundaries when possible, word boundaries otherwise. With zero
// overlap the chunks are an exact partition of the input: concatenating
// them reproduces it byte for byte.
type Splitter struct {
	tok       tokenizer.Tokenizer
	maxTokens int
	overlap   int
}

// NewSplitter builds a Splitter. overlap is the approximate token count
// carried over from the tail of each chunk into the next.
func NewSplitter(tok tokenizer.Tokenizer, maxTokens, overlap int) *Splitter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Splitter{tok: tok, maxTokens: maxTokens, overlap: overlap}
}

type piece struct {
	text   string
	tokens int
}

// Split returns the chunks of text. Whitespace-only input yields none.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var pieces []piece
	for _, sent := range splitSentences(text) {
		n := s.tok.Count(sent)
		if n <= s.maxTokens {
			pieces = append(pieces, piece{sent, n})
			continue
		}
		for _, part := range s.wordSplit(sent) {
			pieces = append(pieces, piece{part, s.tok.Count(part)})
		}
	}

	var chunks []string
	var cur []piece
	curTokens := 0
	fresh := 0

	for _, p := range pieces {
		if fresh > 0 && curTokens+p.tokens > s.maxTokens {
			chunks = append(chunks, concat(cur))
			cur = s.carryTail(cur)
			curTokens = 0
			for _, c := range cur {
				curTokens += c.tokens
			}
			fresh = 0
		}
		cur = append(cur, p)
		curTokens += p.tokens
		fresh++
	}
	if fresh > 0 {
		chunks = append(chunks, concat(cur))
	}
	return chunks
}

// carryTail keeps the trailing pieces of a flushed chunk whose combined
// token count fits inside the configured overlap.
func (s *Splitter) carryTail(cur []piece) []piece {
	if s.overlap == 0 {
		return nil
	}
	total := 0
	i := len(cur)
	for i > 0 && total+cur[i-1].tokens <= s.overlap {
		total += cur[i-1].tokens
		i--
	}
	return append([]piece(nil), cur[i:]...)
}

// wordSplit cuts an oversized sentence at whitespace boundaries, falling
// back to a mid-word cut when a single word exceeds the budget. The parts
// are exact substrings partitioning the sentence.
func (s *Splitter) wordSplit(text string) []string {
	var out []string
	start := 0
	lastSpace := -1
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if s.tok.Count(text[start:i+size]) > s.maxTokens {
			cut := lastSpace
			if cut <= start {
				cut = i
			}
			if cut <= start {
				cut = i + size
			}
			out = append(out, text[start:cut])
			start = cut
			lastSpace = -1
			i = cut
			continue
		}
		if unicode.IsSpace(r) {
			lastSpace = i + size
		}
		i += size
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func concat(pieces []piece) string {
	var b strings.Builder
	for _, p := range pieces {
		b.WriteString(p.text)
	}
	return b.String()
}

// splitSentences partitions text into sentence substrings. A sentence ends
// after a run of terminators (. ! ? or newline) plus any following
// whitespace, so every byte of the input lands in exactly one sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' && c != '\n' {
			continue
		}
		j := i + 1
		for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
			j++
		}
		for j < len(text) && (text[j] == ' ' || text[j] == '\t' || text[j] == '\r' || text[j] == '\n') {
			j++
		}
		out = append(out, text[start:j])
		start = j
		i = j - 1
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
