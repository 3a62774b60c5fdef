package crawler

import (
	"net/url"
	"strings"

	"github.com/dia-upm/muia-rag/internal/config"
)

var imageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".ico",
}

// ScopeFilter decides whether a URL belongs to the crawl scope. The rules
// run in a fixed order: exact exclusions, domain suffix, excluded language
// segment, restricted base allow-list, image extensions.
type ScopeFilter struct {
	excluded          map[string]struct{}
	domainSuffix      string
	languageSegment   string
	restrictedBase    string
	restrictedAllowed map[string]struct{}
}

// NewScopeFilter builds a ScopeFilter from crawler configuration.
func NewScopeFilter(cfg config.CrawlerConfig) *ScopeFilter {
	f := &ScopeFilter{
		excluded:          make(map[string]struct{}, len(cfg.ExcludedURLs)),
		domainSuffix:      cfg.DomainSuffix,
		languageSegment:   cfg.ExcludedLanguageSegment,
		restrictedBase:    cfg.RestrictedBaseURL,
		restrictedAllowed: make(map[string]struct{}, len(cfg.RestrictedAllowedURLs)),
	}
	for _, u := range cfg.ExcludedURLs {
		f.excluded[u] = struct{}{}
	}
	for _, u := range cfg.RestrictedAllowedURLs {
		f.restrictedAllowed[u] = struct{}{}
	}
	return f
}

// Allow reports whether rawURL is in scope.
func (f *ScopeFilter) Allow(rawURL string) bool {
	if _, bad := f.excluded[rawURL]; bad {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if f.domainSuffix != "" && !strings.Contains(u.Host, f.domainSuffix) {
		return false
	}
	if f.languageSegment != "" && strings.Contains(rawURL, f.languageSegment) {
		return false
	}
	if f.restrictedBase != "" && strings.HasPrefix(rawURL, f.restrictedBase) {
		if _, ok := f.restrictedAllowed[rawURL]; !ok {
			return false
		}
	}
	path := strings.ToLower(u.Path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}
