package encode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/corpus"
	"github.com/dia-upm/muia-rag/internal/index"
)

// seedVariants commits post-processed variant files directly.
func seedVariants(t *testing.T, store *corpus.Store, chunks []corpus.Chunk, qa []corpus.QARecord) {
	t.Helper()
	w := store.Begin(testTimestamp)
	require.NoError(t, w.WriteChunks(corpus.LMCleanedTextSubchunks, chunks))
	require.NoError(t, w.WriteChunks(corpus.LMSummarySubchunks, nil))
	require.NoError(t, w.WriteQA(corpus.LMQAndAValidChunks, qa))
	require.NoError(t, w.WriteQA(corpus.LMQAndAForQOnlyValidChunks, qa))
	require.NoError(t, w.Commit())
}

func testChunks() []corpus.Chunk {
	return []corpus.Chunk{
		{URL: "https://muia.dia.fi.upm.es/es/", Index: 0, Text: "el master comienza en septiembre"},
		{URL: "https://muia.dia.fi.upm.es/es/", Index: 1, Text: "las clases son presenciales"},
		{URL: "https://muia.dia.fi.upm.es/es/admision/", Index: 2, Text: "el plazo de admision abre en marzo"},
	}
}

func testQA() []corpus.QARecord {
	return []corpus.QARecord{
		{URL: "https://muia.dia.fi.upm.es/es/", Index: 0, Pairs: []corpus.QAPair{
			{Question: "¿Cuándo empieza?", Answer: "En septiembre."},
			{Question: "¿Es presencial?", Answer: "Sí."},
		}},
		{URL: "https://muia.dia.fi.upm.es/es/admision/", Index: 1, Pairs: []corpus.QAPair{
			{Question: "¿Cuándo abre el plazo?", Answer: "En marzo."},
		}},
	}
}

func newTestUpserter(t *testing.T) (*Upserter, *index.MemoryStore, *corpus.Store) {
	t.Helper()
	store := corpus.NewStore(t.TempDir(), "crawl_", zap.NewNop())
	idx := index.NewMemoryStore()
	return NewUpserter(store, FakeEmbedder{}, idx, zap.NewNop()), idx, store
}

func TestVariantItemsChunkIDs(t *testing.T) {
	u, _, store := newTestUpserter(t)
	seedVariants(t, store, testChunks(), testQA())

	items, err := u.VariantItems(corpus.LMCleanedTextSubchunks, testTimestamp)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, uint64(i), it.id)
		assert.Equal(t, corpus.LMCleanedTextSubchunks, it.payload["variant"])
		assert.Equal(t, testTimestamp, it.payload["timestamp"])
	}
	assert.Equal(t, "el master comienza en septiembre", items[0].text)
}

func TestVariantItemsQAPairOffsets(t *testing.T) {
	u, _, store := newTestUpserter(t)
	seedVariants(t, store, testChunks(), testQA())

	items, err := u.VariantItems(corpus.LMQAndAValidChunks, testTimestamp)
	require.NoError(t, err)
	require.Len(t, items, 3, "one item per pair, across records")

	// Ids are the global pair offsets, not per-record positions.
	assert.Equal(t, uint64(0), items[0].id)
	assert.Equal(t, uint64(1), items[1].id)
	assert.Equal(t, uint64(2), items[2].id)

	assert.Equal(t, "Q: ¿Cuándo empieza?\nA: En septiembre.", items[0].text)
	assert.Equal(t, int64(1), items[0].payload["pair"])
	assert.Equal(t, int64(2), items[1].payload["pair"])
	assert.Equal(t, int64(1), items[2].payload["chunk"])

	qOnly, err := u.VariantItems(corpus.LMQAndAForQOnlyValidChunks, testTimestamp)
	require.NoError(t, err)
	require.Len(t, qOnly, 3)
	assert.Equal(t, "¿Cuándo empieza?", qOnly[0].text)
	assert.Equal(t, qOnly[0].id, items[0].id, "both Q&A variants share pair ids")
}

func TestVariantItemsUnknownVariant(t *testing.T) {
	u, _, _ := newTestUpserter(t)
	_, err := u.VariantItems("raw_chunks", testTimestamp)
	require.Error(t, err)
}

func TestUpsertBatchWritesPoints(t *testing.T) {
	u, idx, store := newTestUpserter(t)
	seedVariants(t, store, testChunks(), testQA())
	ctx := context.Background()

	require.NoError(t, idx.EnsureCollection(ctx, corpus.LMCleanedTextSubchunks, VectorConfigs(), false))

	items, err := u.VariantItems(corpus.LMCleanedTextSubchunks, testTimestamp)
	require.NoError(t, err)

	enc, err := Get("bge_small")
	require.NoError(t, err)

	n, err := u.UpsertBatch(ctx, corpus.LMCleanedTextSubchunks, enc, items, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = u.UpsertBatch(ctx, corpus.LMCleanedTextSubchunks, enc, items, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "final batch is partial")
	assert.Equal(t, 3, idx.PointCount(corpus.LMCleanedTextSubchunks))

	n, err = u.UpsertBatch(ctx, corpus.LMCleanedTextSubchunks, enc, items, 4, 2)
	require.NoError(t, err)
	assert.Zero(t, n, "start beyond the file writes nothing")
}

func TestRetrieveRoundTrip(t *testing.T) {
	u, idx, store := newTestUpserter(t)
	seedVariants(t, store, testChunks(), testQA())
	ctx := context.Background()

	require.NoError(t, idx.EnsureCollection(ctx, corpus.LMCleanedTextSubchunks, VectorConfigs(), false))
	items, err := u.VariantItems(corpus.LMCleanedTextSubchunks, testTimestamp)
	require.NoError(t, err)

	enc, err := Get("bge_small")
	require.NoError(t, err)
	_, err = u.UpsertBatch(ctx, corpus.LMCleanedTextSubchunks, enc, items, 0, len(items))
	require.NoError(t, err)

	// The fake embedder maps equal texts to equal vectors, so querying
	// with a stored text must rank that chunk first.
	hits, err := u.Retrieve(ctx, "las clases son presenciales", corpus.LMCleanedTextSubchunks, "bge_small", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "las clases son presenciales", hits[0].Payload["text"])

	_, err = u.Retrieve(ctx, "q", corpus.LMCleanedTextSubchunks, "word2vec", 2)
	require.Error(t, err)
	_, err = u.Retrieve(ctx, "q", "raw", "bge_small", 2)
	require.Error(t, err)
}

func TestDispatcherEncodesAllVariantsAndEncoders(t *testing.T) {
	u, idx, store := newTestUpserter(t)
	seedVariants(t, store, testChunks(), testQA())
	ctx := context.Background()

	variants := []string{
		corpus.LMCleanedTextSubchunks,
		corpus.LMSummarySubchunks,
		corpus.LMQAndAValidChunks,
		corpus.LMQAndAForQOnlyValidChunks,
	}

	d := NewDispatcher(u, idx, BatchSizes{Default: 2}, 4, zap.NewNop())
	require.NoError(t, d.Run(ctx, testTimestamp, variants, false))

	assert.Equal(t, 3, idx.PointCount(corpus.LMCleanedTextSubchunks))
	assert.Equal(t, 0, idx.PointCount(corpus.LMSummarySubchunks))
	assert.Equal(t, 3, idx.PointCount(corpus.LMQAndAValidChunks))
	assert.Equal(t, 3, idx.PointCount(corpus.LMQAndAForQOnlyValidChunks))

	// Every encoder filled its own slot on the shared point ids.
	for _, enc := range All() {
		hits, err := u.Retrieve(ctx, "el master comienza en septiembre", corpus.LMCleanedTextSubchunks, enc.Name, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1, "encoder %s", enc.Name)
		assert.Equal(t, uint64(0), hits[0].ID, "encoder %s", enc.Name)
	}
}

func TestDispatcherRerunKeepsIDsStable(t *testing.T) {
	u, idx, store := newTestUpserter(t)
	seedVariants(t, store, testChunks(), testQA())
	ctx := context.Background()

	variants := []string{corpus.LMQAndAValidChunks}
	d := NewDispatcher(u, idx, BatchSizes{Default: 2}, 2, zap.NewNop())

	require.NoError(t, d.Run(ctx, testTimestamp, variants, false))
	require.Equal(t, 3, idx.PointCount(corpus.LMQAndAValidChunks))

	require.NoError(t, d.Run(ctx, testTimestamp, variants, false))
	assert.Equal(t, 3, idx.PointCount(corpus.LMQAndAValidChunks), "re-encoding introduces no new ids")
}

func TestDispatcherRecreateDropsStalePoints(t *testing.T) {
	u, idx, store := newTestUpserter(t)
	seedVariants(t, store, testChunks(), testQA())
	ctx := context.Background()

	variant := corpus.LMCleanedTextSubchunks
	require.NoError(t, idx.EnsureCollection(ctx, variant, VectorConfigs(), false))
	require.NoError(t, idx.Upsert(ctx, variant, []index.Point{
		{ID: 99, Vectors: map[string]index.Embedding{"bge_small": {Dense: make([]float32, 384)}}},
	}))

	d := NewDispatcher(u, idx, BatchSizes{Default: 2}, 2, zap.NewNop())
	require.NoError(t, d.Run(ctx, testTimestamp, []string{variant}, true))
	assert.Equal(t, 3, idx.PointCount(variant), "recreate removed the stale point")
}

func TestDispatcherUnknownVariantFails(t *testing.T) {
	u, idx, store := newTestUpserter(t)
	seedVariants(t, store, testChunks(), testQA())

	d := NewDispatcher(u, idx, BatchSizes{Default: 2}, 2, zap.NewNop())
	err := d.Run(context.Background(), testTimestamp, []string{"raw"}, false)
	require.Error(t, err)
}

func TestDispatcherPerEncoderBatchSizes(t *testing.T) {
	u, idx, store := newTestUpserter(t)
	seedVariants(t, store, testChunks(), testQA())
	ctx := context.Background()

	sizes := BatchSizes{Default: 2, ByName: map[string]int{"colbert": 1, "bge_small": 3}}
	assert.Equal(t, 1, sizes.For("colbert"))
	assert.Equal(t, 3, sizes.For("bge_small"))
	assert.Equal(t, 2, sizes.For("splade"), "unlisted encoders fall back to the default")

	variant := corpus.LMCleanedTextSubchunks
	d := NewDispatcher(u, idx, sizes, 2, zap.NewNop())
	require.NoError(t, d.Run(ctx, testTimestamp, []string{variant}, false))
	require.Equal(t, 3, idx.PointCount(variant))

	// Slicing a variant differently per encoder must not move points:
	// every encoder's vector for a text lands on the same id.
	for _, enc := range All() {
		hits, err := u.Retrieve(ctx, "las clases son presenciales", variant, enc.Name, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1, "encoder %s", enc.Name)
		assert.Equal(t, uint64(1), hits[0].ID, "encoder %s", enc.Name)
	}
}

func TestVariantItemsCarrySubchunkPayload(t *testing.T) {
	u, _, store := newTestUpserter(t)
	chunks := []corpus.Chunk{
		{URL: "https://muia.dia.fi.upm.es/es/", Index: 4, SubIndex: 1, Text: "primera parte"},
		{URL: "https://muia.dia.fi.upm.es/es/", Index: 4, SubIndex: 2, Text: "segunda parte"},
	}
	seedVariants(t, store, chunks, nil)

	items, err := u.VariantItems(corpus.LMCleanedTextSubchunks, testTimestamp)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(4), items[0].payload["chunk"])
	assert.Equal(t, int64(1), items[0].payload["subchunk"])
	assert.Equal(t, int64(4), items[1].payload["chunk"])
	assert.Equal(t, int64(2), items[1].payload["subchunk"])
}
