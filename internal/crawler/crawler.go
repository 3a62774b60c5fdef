package crawler

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/config"
)

// PageText is the crawl output for one page: the raw reader markdown and
// its cleaned form.
type PageText struct {
	URL     string
	Raw     string
	Cleaned string
}

// visitTracker provides thread-safe visited URL tracking under two
// identities: the exact URL and its normalized form. A URL is new only if
// neither has been seen.
type visitTracker struct {
	mu             sync.Mutex
	exact          map[string]struct{}
	normalized     map[string]struct{}
	languagePrefix string
}

func newVisitTracker(languagePrefix string) *visitTracker {
	return &visitTracker{
		exact:          make(map[string]struct{}),
		normalized:     make(map[string]struct{}),
		languagePrefix: languagePrefix,
	}
}

// MarkIfNew stores both identities of url if neither has been seen and
// returns true.
func (t *visitTracker) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	norm := Normalize(url, t.languagePrefix)
	if _, seen := t.exact[url]; seen {
		return false
	}
	if _, seen := t.normalized[norm]; seen {
		return false
	}
	t.exact[url] = struct{}{}
	t.normalized[norm] = struct{}{}
	return true
}

// Engine runs the breadth-first crawl.
type Engine struct {
	fetcher Fetcher
	filter  *ScopeFilter
	cfg     config.CrawlerConfig
	logger  *zap.Logger
}

// NewEngine builds a crawl engine.
func NewEngine(fetcher Fetcher, filter *ScopeFilter, cfg config.CrawlerConfig, logger *zap.Logger) *Engine {
	return &Engine{fetcher: fetcher, filter: filter, cfg: cfg, logger: logger}
}

// Crawl walks the site breadth-first from the start URL, up to MaxDepth
// levels. Discovered links are sorted and capped per page before dedup, so
// frontier order is deterministic. The additional seed URLs are fetched
// after the walk under the same dedup. Fetch misses are logged and
// skipped; only context cancellation aborts the crawl.
func (e *Engine) Crawl(ctx context.Context) (map[string]PageText, error) {
	pages := make(map[string]PageText)
	tracker := newVisitTracker(e.cfg.CanonicalLanguagePrefix)

	frontier := []string{e.cfg.StartURL}
	tracker.MarkIfNew(e.cfg.StartURL)

	for depth := 0; depth < e.cfg.MaxDepth && len(frontier) > 0; depth++ {
		e.logger.Info("crawling depth",
			zap.Int("depth", depth),
			zap.Int("frontier", len(frontier)))

		var next []string
		for _, pageURL := range frontier {
			text, fetched, err := e.fetch(ctx, pageURL)
			if err != nil {
				return pages, err
			}
			if !fetched {
				continue
			}
			pages[pageURL] = text

			links := ExtractLinks(text.Raw, e.filter)
			TotalLinksDiscovered.Add(float64(len(links)))
			sort.Strings(links)
			if len(links) > e.cfg.MaxLinksPerPage {
				links = links[:e.cfg.MaxLinksPerPage]
			}
			for _, link := range links {
				if tracker.MarkIfNew(link) {
					next = append(next, link)
				}
			}
		}
		frontier = next
	}

	for _, seedURL := range e.cfg.AdditionalURLs {
		if !tracker.MarkIfNew(seedURL) {
			continue
		}
		text, fetched, err := e.fetch(ctx, seedURL)
		if err != nil {
			return pages, err
		}
		if fetched {
			pages[seedURL] = text
		}
	}

	e.logger.Info("crawl finished", zap.Int("pages", len(pages)))
	return pages, nil
}

func (e *Engine) fetch(ctx context.Context, pageURL string) (PageText, bool, error) {
	select {
	case <-ctx.Done():
		return PageText{}, false, ctx.Err()
	default:
	}

	markdown, ok, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return PageText{}, false, err
	}
	if !ok {
		e.logger.Info("skipping page", zap.String("url", pageURL))
		TotalPagesSkipped.Inc()
		return PageText{}, false, nil
	}

	TotalPagesFetched.Inc()
	return PageText{URL: pageURL, Raw: markdown, Cleaned: CleanMarkdown(markdown)}, true, nil
}
