package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// QdrantStore implements Store against a qdrant instance over grpc.
//
// Upserts merge named vectors into existing points, which takes a read
// before the write; the mutex serializes those read-modify-write pairs
// so concurrent encoder batches cannot drop each other's slots.
type QdrantStore struct {
	client *qdrant.Client
	mu     sync.Mutex
	logger *zap.Logger
}

// NewQdrantStore connects to qdrant at host:port.
func NewQdrantStore(host string, port int, logger *zap.Logger) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return &QdrantStore{client: client, logger: logger}, nil
}

// EnsureCollection creates the collection with one named vector per
// config. With recreate an existing collection is dropped first;
// otherwise it is left untouched.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, vectors []VectorConfig, recreate bool) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if exists {
		if !recreate {
			return nil
		}
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("drop collection %s: %w", name, err)
		}
		s.logger.Info("dropped collection for recreate", zap.String("collection", name))
	}

	dense := make(map[string]*qdrant.VectorParams)
	sparse := make(map[string]*qdrant.SparseVectorParams)
	for _, v := range vectors {
		switch v.Kind {
		case Sparse:
			params := &qdrant.SparseVectorParams{}
			if v.IDFWeighted {
				params.Modifier = qdrant.Modifier_Idf.Enum()
			}
			sparse[v.Name] = params
		case Multi:
			dense[v.Name] = &qdrant.VectorParams{
				Size:     v.Size,
				Distance: qdrant.Distance_Cosine,
				MultivectorConfig: &qdrant.MultiVectorConfig{
					Comparator: qdrant.MultiVectorComparator_MaxSim,
				},
			}
		default:
			dense[v.Name] = &qdrant.VectorParams{
				Size:     v.Size,
				Distance: qdrant.Distance_Cosine,
			}
		}
	}

	create := &qdrant.CreateCollection{CollectionName: name}
	if len(dense) > 0 {
		create.VectorsConfig = qdrant.NewVectorsConfigMap(dense)
	}
	if len(sparse) > 0 {
		create.SparseVectorsConfig = qdrant.NewSparseVectorsConfig(sparse)
	}
	if err := s.client.CreateCollection(ctx, create); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	s.logger.Info("created collection",
		zap.String("collection", name),
		zap.Int("dense_vectors", len(dense)),
		zap.Int("sparse_vectors", len(sparse)))
	return nil
}

// CollectionExists reports whether the collection is present.
func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	return s.client.CollectionExists(ctx, name)
}

// Upsert writes points with their named vectors and payloads, waiting for
// the operation to land. Vectors an existing point holds under other
// names are carried over.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	existing, err := s.existingVectors(ctx, collection, points)
	if err != nil {
		return err
	}

	converted := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		vectors := make(map[string]*qdrant.Vector, len(p.Vectors))
		for name, emb := range existing[p.ID] {
			vectors[name] = toQdrantVector(emb)
		}
		for name, emb := range p.Vectors {
			vectors[name] = toQdrantVector(emb)
		}
		converted = append(converted, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(p.ID),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         converted,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// existingVectors fetches the stored named vectors for the given ids.
func (s *QdrantStore) existingVectors(ctx context.Context, collection string, points []Point) (map[uint64]map[string]Embedding, error) {
	ids := make([]*qdrant.PointId, 0, len(points))
	for _, p := range points {
		ids = append(ids, qdrant.NewIDNum(p.ID))
	}

	stored, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            ids,
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch existing points in %s: %w", collection, err)
	}

	out := make(map[uint64]map[string]Embedding, len(stored))
	for _, p := range stored {
		named := p.GetVectors().GetVectors().GetVectors()
		if len(named) == 0 {
			continue
		}
		vectors := make(map[string]Embedding, len(named))
		for name, v := range named {
			vectors[name] = vectorOutputToEmbedding(v)
		}
		out[p.GetId().GetNum()] = vectors
	}
	return out, nil
}

func vectorOutputToEmbedding(v *qdrant.VectorOutput) Embedding {
	if sparse := v.GetSparse(); sparse != nil {
		return Embedding{SparseIndices: sparse.GetIndices(), SparseValues: sparse.GetValues()}
	}
	if multi := v.GetMultiDense(); multi != nil {
		rows := make([][]float32, 0, len(multi.GetVectors()))
		for _, row := range multi.GetVectors() {
			rows = append(rows, row.GetData())
		}
		return Embedding{Multi: rows}
	}
	if dense := v.GetDense(); dense != nil {
		return Embedding{Dense: dense.GetData()}
	}

	// Older servers return the flat fields instead of the typed variants.
	if v.GetIndices() != nil {
		return Embedding{SparseIndices: v.GetIndices().GetData(), SparseValues: v.GetData()}
	}
	return Embedding{Dense: v.GetData()}
}

// Query runs a top-k search against one named vector, payloads included.
func (s *QdrantStore) Query(ctx context.Context, collection, vectorName string, query Embedding, topK int) ([]Scored, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	var q *qdrant.Query
	switch query.Kind() {
	case Sparse:
		q = qdrant.NewQuerySparse(query.SparseIndices, query.SparseValues)
	case Multi:
		q = qdrant.NewQueryMulti(query.Multi)
	default:
		q = qdrant.NewQuery(query.Dense...)
	}

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          q,
		Using:          qdrant.PtrOf(vectorName),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s using %s: %w", collection, vectorName, err)
	}

	out := make([]Scored, 0, len(hits))
	for _, h := range hits {
		out = append(out, Scored{
			ID:      h.GetId().GetNum(),
			Score:   h.GetScore(),
			Payload: payloadToMap(h.GetPayload()),
		})
	}
	return out, nil
}

// Close releases the grpc connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func toQdrantVector(e Embedding) *qdrant.Vector {
	switch e.Kind() {
	case Sparse:
		return qdrant.NewVectorSparse(e.SparseIndices, e.SparseValues)
	case Multi:
		return qdrant.NewVectorMulti(e.Multi)
	default:
		return qdrant.NewVector(e.Dense...)
	}
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			items = append(items, valueToAny(item))
		}
		return items
	case *qdrant.Value_StructValue:
		return payloadToMap(kind.StructValue.GetFields())
	default:
		return nil
	}
}
