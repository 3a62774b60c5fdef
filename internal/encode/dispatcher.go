package encode

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/index"
)

// Dispatcher fans encode batches out to a pool of workers. Each job is
// one (variant, encoder, batch) triple. Batches may be sized per encoder;
// point ids come from each item's position in the variant, so every
// encoder's vectors land on the same points regardless of slicing.
type Dispatcher struct {
	upserter *Upserter
	idx      index.Store
	encoders []Encoder
	batches  BatchSizes
	workers  int
	logger   *zap.Logger
}

// BatchSizes maps encoder name to batch size, with a fallback for
// encoders left unlisted.
type BatchSizes struct {
	Default int
	ByName  map[string]int
}

// For returns the batch size to use for the named encoder.
func (b BatchSizes) For(name string) int {
	if size, ok := b.ByName[name]; ok && size > 0 {
		return size
	}
	if b.Default > 0 {
		return b.Default
	}
	return 1
}

// NewDispatcher builds a dispatcher over the full encoder fleet.
func NewDispatcher(upserter *Upserter, idx index.Store, batches BatchSizes, workers int, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		upserter: upserter,
		idx:      idx,
		encoders: All(),
		batches:  batches,
		workers:  workers,
		logger:   logger,
	}
}

type batchJob struct {
	variant string
	enc     Encoder
	items   []item
	start   int
	size    int
}

// Run encodes every variant of the snapshot at the given timestamp into
// its collection. With recreate set, existing collections are dropped
// first. The first failing batch cancels the remaining work.
func (d *Dispatcher) Run(ctx context.Context, timestamp string, variants []string, recreate bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var jobs []batchJob
	for _, variant := range variants {
		if err := d.idx.EnsureCollection(ctx, variant, VectorConfigs(), recreate); err != nil {
			return err
		}

		items, err := d.upserter.VariantItems(variant, timestamp)
		if err != nil {
			return err
		}
		d.logger.Info("dispatching variant",
			zap.String("variant", variant),
			zap.Int("items", len(items)),
			zap.Int("encoders", len(d.encoders)),
		)

		for _, enc := range d.encoders {
			size := d.batches.For(enc.Name)
			for start := 0; start < len(items); start += size {
				jobs = append(jobs, batchJob{variant: variant, enc: enc, items: items, start: start, size: size})
			}
		}
	}

	queue := make(chan batchJob)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				totalBatchesDispatched.WithLabelValues(job.variant, job.enc.Name).Inc()
				if _, err := d.upserter.UpsertBatch(ctx, job.variant, job.enc, job.items, job.start, job.size); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					cancel()
				}
			}
		}()
	}

	for _, job := range jobs {
		select {
		case queue <- job:
		case <-ctx.Done():
		}
	}
	close(queue)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
