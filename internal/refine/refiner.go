// Package refine runs crawled pages through the decoder's data-cleaner
// profile, producing abstracts, summaries, cleaned text, and Q&A pairs.
package refine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dia-upm/muia-rag/internal/chunker"
	"github.com/dia-upm/muia-rag/internal/corpus"
	"github.com/dia-upm/muia-rag/internal/decoder"
	"github.com/dia-upm/muia-rag/internal/tokenizer"
)

// PageResult holds everything refined out of one page.
type PageResult struct {
	CleanedTextChunks []corpus.Chunk
	AbstractChunks    []corpus.Chunk
	SummaryChunks     []corpus.Chunk
	QARecords         []corpus.QARecord
}

// Refiner drives the data-cleaner profile over pages. Pages run with
// bounded concurrency; the chunks inside one page run strictly in order,
// because each chunk's prompt carries the running page history and the
// previous chunk's cleaned text.
type Refiner struct {
	client      decoder.Client
	profile     decoder.Profile
	decTok      tokenizer.Tokenizer
	encTok      tokenizer.Tokenizer
	lmSplitter  *chunker.Splitter
	limiter     *rate.Limiter
	clock       corpus.Clock
	concurrency int
	logger      *zap.Logger
}

// Options configures a Refiner.
type Options struct {
	Client decoder.Client
	// DecoderTokenizer budgets the chunks sent to the decoder.
	DecoderTokenizer tokenizer.Tokenizer
	// EncoderTokenizer supplies the second token count on every record.
	EncoderTokenizer tokenizer.Tokenizer
	// ChunkOverlap applies to the decoder-facing splitter.
	ChunkOverlap int
	// RequestsPerSecond paces decoder calls across all pages.
	RequestsPerSecond float64
	// PageConcurrency bounds pages refined in parallel.
	PageConcurrency int
	Clock           corpus.Clock
	Logger          *zap.Logger
}

// New builds a Refiner for the data-cleaner profile.
func New(opts Options) (*Refiner, error) {
	profile, err := decoder.ProfileFor(decoder.DataCleaner)
	if err != nil {
		return nil, err
	}
	if opts.PageConcurrency <= 0 {
		return nil, fmt.Errorf("page concurrency must be > 0")
	}
	if opts.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be > 0")
	}
	return &Refiner{
		client:  opts.Client,
		profile: profile,
		decTok:  opts.DecoderTokenizer,
		encTok:  opts.EncoderTokenizer,
		lmSplitter: chunker.NewSplitter(
			opts.DecoderTokenizer, decoder.DataCleanerMaxChunkTokens, opts.ChunkOverlap),
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		clock:       opts.Clock,
		concurrency: opts.PageConcurrency,
		logger:      opts.Logger,
	}, nil
}

// RefineAll refines every page and merges the results. Page order in the
// output follows the sorted URLs. Decoder failures skip the affected chunk
// and never abort the run; only context cancellation does.
func (r *Refiner) RefineAll(ctx context.Context, pages map[string]string) (PageResult, error) {
	urls := make([]string, 0, len(pages))
	for u := range pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	results := make([]PageResult, len(urls))
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := r.RefinePage(ctx, u, pages[u])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results[i] = res
		}(i, u)
	}
	wg.Wait()

	if firstErr != nil {
		return PageResult{}, firstErr
	}

	var merged PageResult
	for _, res := range results {
		merged.CleanedTextChunks = append(merged.CleanedTextChunks, res.CleanedTextChunks...)
		merged.AbstractChunks = append(merged.AbstractChunks, res.AbstractChunks...)
		merged.SummaryChunks = append(merged.SummaryChunks, res.SummaryChunks...)
		merged.QARecords = append(merged.QARecords, res.QARecords...)
	}
	return merged, nil
}

// RefinePage refines one page chunk by chunk.
func (r *Refiner) RefinePage(ctx context.Context, pageURL, cleanedText string) (PageResult, error) {
	var out PageResult
	history := &pageHistory{}
	prevCleaned := startOfDocument

	chunks := r.lmSplitter.Split(cleanedText)
	for i, chunk := range chunks {
		if err := r.limiter.Wait(ctx); err != nil {
			return PageResult{}, err
		}

		prompt, err := r.profile.Template.Render(map[string]string{
			"datetime":               r.clock.Now().Format("2006-01-02 15:04:05"),
			"page_history_context":   history.context(),
			"previous_chunk_context": prevCleaned,
			"text":                   chunk,
		})
		if err != nil {
			return PageResult{}, fmt.Errorf("render data cleaner prompt: %w", err)
		}

		raw, err := r.client.Generate(ctx, decoder.Request{
			System: r.profile.System,
			Prompt: prompt,
			Params: r.profile.Params,
		})
		if err != nil {
			if ctx.Err() != nil {
				return PageResult{}, ctx.Err()
			}
			TotalDecoderFailures.Inc()
			r.logger.Warn("decoder call failed; skipping chunk",
				zap.String("url", pageURL), zap.Int("chunk", i), zap.Error(err))
			continue
		}

		// Each derived unit stands on its own: an empty tag drops that
		// unit only, never the chunk's other units.
		parsed := decoder.ParseCleaned(raw)
		if parsed.Abstract != "" && parsed.Summary != "" {
			history.add(i, parsed.Abstract, parsed.Summary)
		}
		if parsed.CleanedText != "" {
			prevCleaned = parsed.CleanedText
		}

		if parsed.Abstract != "" {
			out.AbstractChunks = append(out.AbstractChunks,
				r.newChunk(pageURL, i, parsed.Abstract))
		}
		if parsed.Summary != "" {
			out.SummaryChunks = append(out.SummaryChunks,
				r.newChunk(pageURL, i, parsed.Summary))
		}
		if parsed.CleanedText != "" {
			out.CleanedTextChunks = append(out.CleanedTextChunks,
				r.newChunk(pageURL, i, parsed.CleanedText))
		}

		if rec, ok := r.pairQA(pageURL, i, parsed); ok {
			out.QARecords = append(out.QARecords, rec)
		}

		TotalChunksRefined.Inc()
	}
	return out, nil
}

func (r *Refiner) newChunk(pageURL string, index int, text string) corpus.Chunk {
	return corpus.Chunk{
		URL:   pageURL,
		Index: index,
		Text:  text,
		Tokens: map[string]int{
			r.decTok.Name(): r.decTok.Count(text),
			r.encTok.Name(): r.encTok.Count(text),
		},
	}
}

// pairQA zips questions with answers. A length mismatch discards the
// chunk's pairs entirely rather than guessing at an alignment.
func (r *Refiner) pairQA(pageURL string, index int, parsed decoder.Cleaned) (corpus.QARecord, bool) {
	if len(parsed.Questions) == 0 {
		return corpus.QARecord{}, false
	}
	if len(parsed.Questions) != len(parsed.Answers) {
		TotalQADropped.Inc()
		r.logger.Warn("question/answer count mismatch; dropping pairs",
			zap.String("url", pageURL),
			zap.Int("chunk", index),
			zap.Int("questions", len(parsed.Questions)),
			zap.Int("answers", len(parsed.Answers)))
		return corpus.QARecord{}, false
	}

	rec := corpus.QARecord{URL: pageURL, Index: index}
	for i, q := range parsed.Questions {
		a := parsed.Answers[i]
		rec.Pairs = append(rec.Pairs, corpus.QAPair{
			Question: q,
			Answer:   a,
			Tokens: map[string]int{
				r.decTok.Name(): maxInt(r.decTok.Count(q), r.decTok.Count(a)),
				r.encTok.Name(): maxInt(r.encTok.Count(q), r.encTok.Count(a)),
			},
		})
	}
	return rec, true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
