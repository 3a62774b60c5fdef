package encode

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/corpus"
	"github.com/dia-upm/muia-rag/internal/index"
)

// Upserter loads variant records, embeds them, and writes the points
// into the variant's collection.
//
// Point ids are deterministic across encoders so every named vector of
// a record lands on the same point: chunk records use their record
// index, Q&A records use the global pair offset across the variant file.
type Upserter struct {
	store    *corpus.Store
	embedder Embedder
	idx      index.Store
	logger   *zap.Logger
}

// NewUpserter wires an upserter over the snapshot store, an embedder,
// and the vector index.
func NewUpserter(store *corpus.Store, embedder Embedder, idx index.Store, logger *zap.Logger) *Upserter {
	return &Upserter{store: store, embedder: embedder, idx: idx, logger: logger}
}

// item is one embeddable unit of a variant with its stable point id.
type item struct {
	id      uint64
	text    string
	payload map[string]any
}

// VariantItems loads a variant file and flattens it into embeddable
// items. Chunk variants yield one item per chunk; Q&A variants yield
// one item per pair.
func (u *Upserter) VariantItems(variant, timestamp string) ([]item, error) {
	if _, err := SourceCorpus(variant); err != nil {
		return nil, err
	}

	if !IsQAVariant(variant) {
		chunks, err := u.store.ReadChunks(variant, timestamp)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", variant, err)
		}
		items := make([]item, 0, len(chunks))
		for i, c := range chunks {
			payload := map[string]any{
				"url":       c.URL,
				"chunk":     int64(c.Index),
				"text":      c.Text,
				"variant":   variant,
				"timestamp": timestamp,
			}
			if c.SubIndex > 0 {
				payload["subchunk"] = int64(c.SubIndex)
			}
			items = append(items, item{
				id:      uint64(i),
				text:    c.Text,
				payload: payload,
			})
		}
		return items, nil
	}

	records, err := u.store.ReadQA(variant, timestamp)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", variant, err)
	}

	questionOnly := variant == corpus.LMQAndAForQOnlyValidChunks
	var items []item
	for _, rec := range records {
		for p, pair := range rec.Pairs {
			text := serializePair(pair)
			if questionOnly {
				text = pair.Question
			}
			items = append(items, item{
				id:   uint64(len(items)),
				text: text,
				payload: map[string]any{
					"url":       rec.URL,
					"chunk":     int64(rec.Index),
					"pair":      int64(p + 1),
					"question":  pair.Question,
					"answer":    pair.Answer,
					"text":      text,
					"variant":   variant,
					"timestamp": timestamp,
				},
			})
		}
	}
	return items, nil
}

// UpsertBatch embeds items[start:start+size] under one encoder and
// upserts the resulting points. It returns the number of points written.
func (u *Upserter) UpsertBatch(ctx context.Context, variant string, enc Encoder, items []item, start, size int) (int, error) {
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	if start >= end {
		return 0, nil
	}
	batch := items[start:end]

	texts := make([]string, len(batch))
	for i, it := range batch {
		texts[i] = it.text
	}

	embeddings, err := u.embedder.Embed(ctx, enc, texts)
	if err != nil {
		totalEncodeFailures.WithLabelValues(variant, enc.Name).Inc()
		return 0, fmt.Errorf("embedding %s batch at %d with %s: %w", variant, start, enc.Name, err)
	}

	points := make([]index.Point, len(batch))
	for i, it := range batch {
		points[i] = index.Point{
			ID:      it.id,
			Vectors: map[string]index.Embedding{enc.Name: embeddings[i]},
			Payload: it.payload,
		}
	}

	if err := u.idx.Upsert(ctx, variant, points); err != nil {
		totalEncodeFailures.WithLabelValues(variant, enc.Name).Inc()
		return 0, fmt.Errorf("upserting %s batch at %d: %w", variant, start, err)
	}

	totalPointsUpserted.WithLabelValues(variant, enc.Name).Add(float64(len(points)))
	return len(points), nil
}

// Retrieve embeds the query under one encoder and returns the top
// matches from the variant's collection.
func (u *Upserter) Retrieve(ctx context.Context, query, variant, encoderName string, topK int) ([]index.Scored, error) {
	enc, err := Get(encoderName)
	if err != nil {
		return nil, err
	}
	if _, err := SourceCorpus(variant); err != nil {
		return nil, err
	}

	embeddings, err := u.embedder.Embed(ctx, enc, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return u.idx.Query(ctx, variant, enc.Name, embeddings[0], topK)
}
