package decoder

import (
	"regexp"
	"strings"
	"sync"
)

var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// RemoveThink strips thinking blocks from a model response.
func RemoveThink(s string) string {
	return strings.TrimSpace(thinkPattern.ReplaceAllString(s, ""))
}

var (
	tagPatternsMu sync.Mutex
	tagPatterns   = map[string]*regexp.Regexp{}
)

func tagPattern(tag string) *regexp.Regexp {
	tagPatternsMu.Lock()
	defer tagPatternsMu.Unlock()

	if re, ok := tagPatterns[tag]; ok {
		return re
	}
	q := regexp.QuoteMeta(tag)
	re := regexp.MustCompile(`(?s)<` + q + `>(.*?)</` + q + `>`)
	tagPatterns[tag] = re
	return re
}

// ExtractAll returns the trimmed contents of every <tag>...</tag> block.
func ExtractAll(s, tag string) []string {
	var out []string
	for _, m := range tagPattern(tag).FindAllStringSubmatch(s, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// ExtractFirst returns the first <tag>...</tag> block, trimmed.
func ExtractFirst(s, tag string) (string, bool) {
	m := tagPattern(tag).FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// HasTag reports whether an opening <tag> appears in s.
func HasTag(s, tag string) bool {
	return strings.Contains(s, "<"+tag+">")
}
