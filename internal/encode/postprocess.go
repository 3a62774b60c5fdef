package encode

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/chunker"
	"github.com/dia-upm/muia-rag/internal/corpus"
	"github.com/dia-upm/muia-rag/internal/tokenizer"
)

// variantSource maps each encodable variant to the snapshot corpus it is
// derived from.
var variantSource = map[string]string{
	corpus.LMCleanedTextSubchunks:     corpus.LMCleanedTextChunks,
	corpus.LMSummarySubchunks:         corpus.LMSummaryChunks,
	corpus.LMQAndAValidChunks:         corpus.LMQAndAChunks,
	corpus.LMQAndAForQOnlyValidChunks: corpus.LMQAndAChunks,
}

// IsQAVariant reports whether a variant holds question/answer records
// rather than chunk records.
func IsQAVariant(variant string) bool {
	return variant == corpus.LMQAndAValidChunks || variant == corpus.LMQAndAForQOnlyValidChunks
}

// SourceCorpus returns the snapshot corpus a variant is derived from.
func SourceCorpus(variant string) (string, error) {
	src, ok := variantSource[variant]
	if !ok {
		return "", fmt.Errorf("unknown variant %q", variant)
	}
	return src, nil
}

// PostProcessor derives the encodable variants from a committed crawl
// snapshot: text chunks are re-split to the fleet's tightest input
// budget, and Q&A records are filtered down to complete pairs.
type PostProcessor struct {
	store  *corpus.Store
	decTok tokenizer.Tokenizer
	encTok tokenizer.Tokenizer
	split  *chunker.Splitter
	logger *zap.Logger
}

// NewPostProcessor builds a post-processor over the snapshot store. Both
// tokenizers are carried so every written record counts tokens for the
// decoder and the encoder side; the encoder tokenizer drives the split.
func NewPostProcessor(store *corpus.Store, decTok, encTok tokenizer.Tokenizer, logger *zap.Logger) *PostProcessor {
	return &PostProcessor{
		store:  store,
		decTok: decTok,
		encTok: encTok,
		split:  chunker.NewSplitter(encTok, SmallestInputBudget(), 0),
		logger: logger,
	}
}

// Run derives every variant for the snapshot at the given timestamp and
// commits them together.
func (p *PostProcessor) Run(timestamp string) (map[string]int, error) {
	writer := p.store.Begin(timestamp)
	written := make(map[string]int)

	sub, err := p.subchunk(writer, corpus.LMCleanedTextChunks, corpus.LMCleanedTextSubchunks)
	if err != nil {
		writer.Abort()
		return nil, err
	}
	written[corpus.LMCleanedTextSubchunks] = sub

	sub, err = p.subchunk(writer, corpus.LMSummaryChunks, corpus.LMSummarySubchunks)
	if err != nil {
		writer.Abort()
		return nil, err
	}
	written[corpus.LMSummarySubchunks] = sub

	all, err := p.store.ReadQA(corpus.LMQAndAChunks, timestamp)
	if err != nil {
		writer.Abort()
		return nil, fmt.Errorf("reading %s: %w", corpus.LMQAndAChunks, err)
	}

	valid, err := p.validQA(writer, all, corpus.LMQAndAValidChunks, serializePair)
	if err != nil {
		writer.Abort()
		return nil, err
	}
	written[corpus.LMQAndAValidChunks] = valid

	valid, err = p.validQA(writer, all, corpus.LMQAndAForQOnlyValidChunks, questionOnly)
	if err != nil {
		writer.Abort()
		return nil, err
	}
	written[corpus.LMQAndAForQOnlyValidChunks] = valid

	if err := writer.Commit(); err != nil {
		return nil, err
	}

	p.logger.Info("post-processed snapshot variants", zap.String("timestamp", timestamp))
	return written, nil
}

// serializePair is the text actually embedded for a full Q&A pair.
func serializePair(pair corpus.QAPair) string {
	return fmt.Sprintf("Q: %s\nA: %s", pair.Question, pair.Answer)
}

func questionOnly(pair corpus.QAPair) string {
	return pair.Question
}

// subchunk re-splits every chunk of src into pieces that fit the
// smallest encoder input budget. Each piece keeps the source chunk's
// url and index and numbers itself in subchunk_index. The first
// oversized chunk per corpus is logged as a truncation example.
func (p *PostProcessor) subchunk(writer *corpus.SnapshotWriter, src, dst string) (int, error) {
	chunks, err := p.store.ReadChunks(src, writer.Timestamp())
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", src, err)
	}

	logged := false
	out := make([]corpus.Chunk, 0, len(chunks))
	for _, c := range chunks {
		pieces := p.split.Split(c.Text)
		if len(pieces) > 1 && !logged {
			p.logger.Info("chunk exceeds encoder input budget, sub-chunking",
				zap.String("corpus", dst),
				zap.String("url", c.URL),
				zap.Int("source_index", c.Index),
				zap.Int("pieces", len(pieces)),
			)
			logged = true
		}
		for j, piece := range pieces {
			out = append(out, corpus.Chunk{
				URL:      c.URL,
				Index:    c.Index,
				SubIndex: j + 1,
				Text:     piece,
				Tokens: map[string]int{
					p.decTok.Name(): p.decTok.Count(piece),
					p.encTok.Name(): p.encTok.Count(piece),
				},
			})
		}
	}

	if err := writer.WriteChunks(dst, out); err != nil {
		return 0, err
	}
	return len(out), nil
}

// validQA filters Q&A records down to pairs whose embeddable text, as
// produced by serialize, fits the encoder input budget. Pairs are atomic:
// an oversized pair is dropped, never split. Records left with no pairs
// are dropped. Returns the number of surviving pairs.
func (p *PostProcessor) validQA(writer *corpus.SnapshotWriter, all []corpus.QARecord, dst string, serialize func(corpus.QAPair) string) (int, error) {
	budget := SmallestInputBudget()
	kept, skipped := 0, 0
	logged := false

	out := make([]corpus.QARecord, 0, len(all))
	for _, rec := range all {
		pairs := make([]corpus.QAPair, 0, len(rec.Pairs))
		for _, pair := range rec.Pairs {
			if pair.Question == "" || pair.Answer == "" {
				skipped++
				continue
			}
			text := serialize(pair)
			if tokens := p.encTok.Count(text); tokens > budget {
				skipped++
				if !logged {
					p.logger.Info("dropping oversized pair",
						zap.String("corpus", dst),
						zap.String("url", rec.URL),
						zap.Int("tokens", tokens),
						zap.Int("budget", budget),
					)
					logged = true
				}
				continue
			}
			pairs = append(pairs, pair)
		}
		if len(pairs) == 0 {
			continue
		}
		out = append(out, corpus.QARecord{URL: rec.URL, Index: rec.Index, Pairs: pairs})
		kept += len(pairs)
	}

	if skipped > 0 {
		p.logger.Info("skipped pairs", zap.String("corpus", dst), zap.Int("skipped", skipped))
	}
	if err := writer.WriteQA(dst, out); err != nil {
		return 0, err
	}
	return kept, nil
}
