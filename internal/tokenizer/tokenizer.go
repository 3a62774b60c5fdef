// Package tokenizer estimates token budgets for remote models.
//
// The decoder and encoder models tokenize server-side; the pipeline only
// needs budget arithmetic (how many chunks, where to cut), so a calibrated
// subword estimator is used instead of shipping vocabularies.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenizer reports token counts and truncates text to a token budget.
type Tokenizer interface {
	Name() string
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// Heuristic approximates a subword tokenizer: alphanumeric runs cost
// ceil(len/charsPerToken) tokens, every other printable rune costs one.
type Heuristic struct {
	name          string
	charsPerToken int
}

// NewHeuristic builds an estimator. charsPerToken below 1 is clamped to 1.
func NewHeuristic(name string, charsPerToken int) *Heuristic {
	if charsPerToken < 1 {
		charsPerToken = 1
	}
	return &Heuristic{name: name, charsPerToken: charsPerToken}
}

// Name returns the model path this estimator was calibrated for.
func (h *Heuristic) Name() string {
	return h.name
}

// Count estimates the token count of text. Invalid bytes (a rune cut at
// a byte boundary) cost nothing, so the count never decreases as bytes
// are appended; Truncate's binary search relies on that.
func (h *Heuristic) Count(text string) int {
	tokens := 0
	run := 0
	flush := func() {
		if run > 0 {
			tokens += (run + h.charsPerToken - 1) / h.charsPerToken
			run = 0
		}
	}
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			run++
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			tokens++
		}
		i += size
	}
	flush()
	return tokens
}

// Truncate returns text unchanged when it fits within maxTokens, otherwise
// the longest prefix costing at most maxTokens-1 tokens with an ellipsis.
func (h *Heuristic) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if h.Count(text) <= maxTokens {
		return text
	}

	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if h.Count(string(runes[:mid])) <= maxTokens-1 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.TrimRight(string(runes[:lo]), " \t\n") + "..."
}
