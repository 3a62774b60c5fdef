// Package pipeline orchestrates the crawl-to-index run: crawl or reuse a
// snapshot, refine it through the decoder, persist every corpus, then
// post-process and encode the variants.
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/chunker"
	"github.com/dia-upm/muia-rag/internal/corpus"
	"github.com/dia-upm/muia-rag/internal/crawler"
	"github.com/dia-upm/muia-rag/internal/refine"
	"github.com/dia-upm/muia-rag/internal/tokenizer"
)

// Crawler walks the site and returns raw and cleaned text per URL.
type Crawler interface {
	Crawl(ctx context.Context) (map[string]crawler.PageText, error)
}

// Refiner runs pages through the decoder's data-cleaner profile.
type Refiner interface {
	RefineAll(ctx context.Context, pages map[string]string) (refine.PageResult, error)
}

// PostProcessor derives the encodable variants from a snapshot.
type PostProcessor interface {
	Run(timestamp string) (map[string]int, error)
}

// Dispatcher encodes variant files into the vector index.
type Dispatcher interface {
	Run(ctx context.Context, timestamp string, variants []string, recreate bool) error
}

// Archiver mirrors committed snapshot files to blob storage.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, timestamp string, corpora []string) error
}

// Runner drives one pipeline run end to end.
type Runner struct {
	crawler  Crawler
	refiner  Refiner
	post     PostProcessor
	dispatch Dispatcher
	archiver Archiver
	store    *corpus.Store
	decTok   tokenizer.Tokenizer
	encTok   tokenizer.Tokenizer
	splitter *chunker.Splitter
	clock    corpus.Clock
	reuse    corpus.ReusePolicy
	logger   *zap.Logger
}

// Options wires a Runner.
type Options struct {
	Crawler       Crawler
	Refiner       Refiner
	PostProcessor PostProcessor
	Dispatcher    Dispatcher
	Archiver      Archiver
	Store         *corpus.Store
	// DecoderTokenizer and EncoderTokenizer provide the two token
	// counts carried on every page record.
	DecoderTokenizer tokenizer.Tokenizer
	EncoderTokenizer tokenizer.Tokenizer
	// EmbeddingBudget sizes the raw and manually-cleaned chunks.
	EmbeddingBudget int
	ChunkOverlap    int
	Clock           corpus.Clock
	Reuse           corpus.ReusePolicy
	Logger          *zap.Logger
}

// NewRunner builds a Runner.
func NewRunner(opts Options) *Runner {
	return &Runner{
		crawler:  opts.Crawler,
		refiner:  opts.Refiner,
		post:     opts.PostProcessor,
		dispatch: opts.Dispatcher,
		archiver: opts.Archiver,
		store:    opts.Store,
		decTok:   opts.DecoderTokenizer,
		encTok:   opts.EncoderTokenizer,
		splitter: chunker.NewSplitter(opts.EncoderTokenizer, opts.EmbeddingBudget, opts.ChunkOverlap),
		clock:    opts.Clock,
		reuse:    opts.Reuse,
		logger:   opts.Logger,
	}
}

// BuildSnapshot resolves the reuse policy and either returns an existing
// snapshot timestamp or runs a fresh crawl-and-refine, committing all
// corpora under a new timestamp. Nothing is visible under the new
// timestamp unless every corpus was written.
func (r *Runner) BuildSnapshot(ctx context.Context) (timestamp string, reused bool, err error) {
	res, err := r.store.Resolve(r.reuse, corpus.PipelineCorpora, r.clock.Now())
	if err != nil {
		return "", false, err
	}
	if !res.Fresh {
		totalSnapshotsReused.Inc()
		r.logger.Info("reusing snapshot", zap.String("timestamp", res.Timestamp))
		return res.Timestamp, true, nil
	}

	timestamp = r.clock.Now().UTC().Format(corpus.TimestampLayout)
	pages, err := r.crawler.Crawl(ctx)
	if err != nil {
		return "", false, fmt.Errorf("crawling: %w", err)
	}
	if len(pages) == 0 {
		return "", false, fmt.Errorf("crawl produced no pages")
	}

	cleaned := make(map[string]string, len(pages))
	for url, page := range pages {
		cleaned[url] = page.Cleaned
	}
	refined, err := r.refiner.RefineAll(ctx, cleaned)
	if err != nil {
		return "", false, fmt.Errorf("refining: %w", err)
	}

	if err := r.commitSnapshot(timestamp, pages, refined); err != nil {
		return "", false, err
	}
	totalSnapshotsBuilt.Inc()
	r.logger.Info("snapshot committed",
		zap.String("timestamp", timestamp),
		zap.Int("pages", len(pages)),
	)

	// The committed snapshot on disk is the source of truth; a failed
	// mirror is re-runnable and must not fail the run.
	if err := r.archiver.ArchiveSnapshot(ctx, timestamp, corpus.PipelineCorpora); err != nil {
		r.logger.Warn("snapshot archive failed", zap.String("timestamp", timestamp), zap.Error(err))
	}
	return timestamp, false, nil
}

// Encode post-processes the snapshot's variants and dispatches them to
// the encoder fleet.
func (r *Runner) Encode(ctx context.Context, timestamp string, variants []string, recreate bool) error {
	if len(variants) == 0 {
		return fmt.Errorf("no encode variants configured")
	}

	written, err := r.post.Run(timestamp)
	if err != nil {
		return fmt.Errorf("post-processing snapshot %s: %w", timestamp, err)
	}
	for variant, n := range written {
		r.logger.Info("variant ready", zap.String("variant", variant), zap.Int("records", n))
	}

	return r.dispatch.Run(ctx, timestamp, variants, recreate)
}

// Run executes the full pipeline and returns the snapshot timestamp.
func (r *Runner) Run(ctx context.Context, variants []string, recreate bool) (string, error) {
	timestamp, _, err := r.BuildSnapshot(ctx)
	if err != nil {
		return "", err
	}
	if err := r.Encode(ctx, timestamp, variants, recreate); err != nil {
		return "", err
	}
	return timestamp, nil
}

// ResolveTimestamp finds the newest complete snapshot, for commands that
// operate on an already-built snapshot.
func (r *Runner) ResolveTimestamp() (string, error) {
	policy := corpus.ReusePolicy{
		Enabled:       true,
		AllowPastYear: r.reuse.AllowPastYear,
		Timestamp:     r.reuse.Timestamp,
	}
	res, err := r.store.Resolve(policy, corpus.PipelineCorpora, r.clock.Now())
	if err != nil {
		return "", err
	}
	if res.Fresh {
		return "", fmt.Errorf("no complete snapshot found under %s", r.store.Dir(corpus.Raw))
	}
	return res.Timestamp, nil
}

// commitSnapshot stages every corpus of a fresh run and commits them as
// one unit.
func (r *Runner) commitSnapshot(timestamp string, pages map[string]crawler.PageText, refined refine.PageResult) error {
	urls := make([]string, 0, len(pages))
	for u := range pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	rawPages := make([]corpus.Page, 0, len(urls))
	cleanedPages := make([]corpus.Page, 0, len(urls))
	var rawChunks, cleanedChunks []corpus.Chunk
	for _, u := range urls {
		page := pages[u]
		rawPages = append(rawPages, corpus.Page{URL: u, Text: page.Raw, Tokens: r.tokenCounts(page.Raw)})
		cleanedPages = append(cleanedPages, corpus.Page{URL: u, Text: page.Cleaned, Tokens: r.tokenCounts(page.Cleaned)})
		rawChunks = append(rawChunks, r.chunkPage(u, page.Raw)...)
		cleanedChunks = append(cleanedChunks, r.chunkPage(u, page.Cleaned)...)
	}

	w := r.store.Begin(timestamp)
	writes := []struct {
		corpus string
		write  func() error
	}{
		{corpus.Raw, func() error { return w.WritePages(corpus.Raw, rawPages) }},
		{corpus.ManuallyCleaned, func() error { return w.WritePages(corpus.ManuallyCleaned, cleanedPages) }},
		{corpus.RawChunks, func() error { return w.WriteChunks(corpus.RawChunks, rawChunks) }},
		{corpus.ManuallyCleanedChunks, func() error { return w.WriteChunks(corpus.ManuallyCleanedChunks, cleanedChunks) }},
		{corpus.LMCleanedTextChunks, func() error { return w.WriteChunks(corpus.LMCleanedTextChunks, refined.CleanedTextChunks) }},
		{corpus.LMAbstractChunks, func() error { return w.WriteChunks(corpus.LMAbstractChunks, refined.AbstractChunks) }},
		{corpus.LMSummaryChunks, func() error { return w.WriteChunks(corpus.LMSummaryChunks, refined.SummaryChunks) }},
		{corpus.LMQAndAChunks, func() error { return w.WriteQA(corpus.LMQAndAChunks, refined.QARecords) }},
	}
	for _, step := range writes {
		if err := step.write(); err != nil {
			w.Abort()
			return fmt.Errorf("writing %s: %w", step.corpus, err)
		}
	}
	return w.Commit()
}

func (r *Runner) tokenCounts(text string) map[string]int {
	return map[string]int{
		r.decTok.Name(): r.decTok.Count(text),
		r.encTok.Name(): r.encTok.Count(text),
	}
}

func (r *Runner) chunkPage(url, text string) []corpus.Chunk {
	pieces := r.splitter.Split(text)
	chunks := make([]corpus.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, corpus.Chunk{
			URL:    url,
			Index:  i,
			Text:   piece,
			Tokens: r.tokenCounts(piece),
		})
	}
	return chunks
}
