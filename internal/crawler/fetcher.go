package crawler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const fetchResultKey = "fetch_result"

// Fetcher retrieves the markdown rendition of a page. ok is false on a
// soft miss (non-200, transport error, empty body); err is reserved for
// conditions that should abort the crawl, such as context cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (markdown string, ok bool, err error)
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// ReaderFetcher fetches pages through a markdown reader proxy using a
// colly collector. The collector's limit rule enforces the politeness
// delay: a fixed minimum plus a uniformly random extra before every
// request.
type ReaderFetcher struct {
	collector  *colly.Collector
	readerBase string
	logger     *zap.Logger
}

// NewReaderFetcher builds a ReaderFetcher. readerBase must end with a
// slash; the page URL is appended to it verbatim.
func NewReaderFetcher(readerBase string, timeout, minDelay, randomDelay time.Duration, logger *zap.Logger) (*ReaderFetcher, error) {
	if !strings.HasSuffix(readerBase, "/") {
		return nil, fmt.Errorf("reader base %q must end with /", readerBase)
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent("muia-rag-crawler/1.0"),
	)
	c.SetRequestTimeout(timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       minDelay,
		RandomDelay: randomDelay,
	}); err != nil {
		return nil, fmt.Errorf("set limit rule: %w", err)
	}

	c.OnResponse(func(r *colly.Response) {
		if res, ok := r.Ctx.GetAny(fetchResultKey).(*fetchResult); ok {
			res.status = r.StatusCode
			res.body = r.Body
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if res, ok := r.Ctx.GetAny(fetchResultKey).(*fetchResult); ok {
			res.status = r.StatusCode
			res.err = err
		}
	})

	return &ReaderFetcher{collector: c, readerBase: readerBase, logger: logger}, nil
}

// Fetch requests the reader rendition of pageURL. The fragment is stripped
// before building the proxy URL.
func (f *ReaderFetcher) Fetch(ctx context.Context, pageURL string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	target := f.readerBase + Defrag(pageURL)
	res := &fetchResult{}
	cctx := colly.NewContext()
	cctx.Put(fetchResultKey, res)

	if err := f.collector.Request(http.MethodGet, target, nil, cctx, nil); err != nil {
		f.logger.Warn("reader request failed", zap.String("url", pageURL), zap.Error(err))
		TotalFetchErrors.Inc()
		return "", false, nil
	}
	f.collector.Wait()

	if res.err != nil {
		f.logger.Warn("reader fetch error",
			zap.String("url", pageURL),
			zap.Int("status", res.status),
			zap.Error(res.err))
		TotalFetchErrors.Inc()
		return "", false, nil
	}
	if res.status != http.StatusOK {
		f.logger.Warn("reader returned non-200", zap.String("url", pageURL), zap.Int("status", res.status))
		TotalFetchErrors.Inc()
		return "", false, nil
	}

	body := strings.TrimSpace(strings.ToValidUTF8(string(res.body), "�"))
	if body == "" {
		return "", false, nil
	}
	return body, true, nil
}
