package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

// linkPattern matches absolute http(s) URLs inside markdown text.
var linkPattern = regexp.MustCompile(`https?://[^\s()<>"'\[\]]+`)

// Defrag strips the fragment from a URL, leaving the rest untouched.
func Defrag(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// Normalize returns the identity used for revisit detection: the defragged
// URL with the canonical language prefix stripped from its path, so that
// /es/foo and /foo count as the same page. The result is never fetched.
func Normalize(rawURL, languagePrefix string) string {
	raw := Defrag(rawURL)
	if languagePrefix == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.HasPrefix(u.Path, languagePrefix+"/") {
		u.Path = u.Path[len(languagePrefix):]
		return u.String()
	}
	return raw
}

// ExtractLinks pulls in-scope absolute URLs out of markdown, defragged and
// deduplicated in discovery order.
func ExtractLinks(markdown string, filter *ScopeFilter) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range linkPattern.FindAllString(markdown, -1) {
		u := Defrag(m)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if filter != nil && !filter.Allow(u) {
			continue
		}
		out = append(out, u)
	}
	return out
}
