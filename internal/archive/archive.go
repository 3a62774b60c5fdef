// Package archive mirrors committed corpus snapshots to a blob store.
// The abstraction keeps the pipeline independent of a specific backend
// (Google Cloud Storage, the local filesystem, or nothing at all).
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/corpus"
)

// Provider is the blob store boundary: it saves one object under a key.
type Provider interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider discards everything. Used when archival is disabled.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}

// MemoryProvider keeps objects in a map; tests and dry runs use it.
type MemoryProvider struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{objects: make(map[string][]byte)}
}

// Save copies data under objectName.
func (m *MemoryProvider) Save(_ context.Context, objectName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectName] = append([]byte(nil), data...)
	return nil
}

// Object returns a stored object and whether it exists.
func (m *MemoryProvider) Object(objectName string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[objectName]
	return data, ok
}

// Archiver uploads every file of a committed snapshot, JSONL and txt
// diagnostics alike, keyed as <corpus>/<file name>.
type Archiver struct {
	provider Provider
	store    *corpus.Store
	logger   *zap.Logger
}

// NewArchiver wires an archiver over the snapshot store.
func NewArchiver(provider Provider, store *corpus.Store, logger *zap.Logger) *Archiver {
	return &Archiver{provider: provider, store: store, logger: logger}
}

// ArchiveSnapshot mirrors the given corpora of one snapshot. The
// snapshot must already be committed; a missing file is an error, not a
// skip, so a partial upload cannot masquerade as a full archive.
func (a *Archiver) ArchiveSnapshot(ctx context.Context, timestamp string, corpora []string) error {
	uploaded := 0
	for _, name := range corpora {
		jsonl := a.store.Path(name, timestamp)
		txt := jsonl[:len(jsonl)-len(".jsonl")] + ".txt"

		for _, path := range []string{jsonl, txt} {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading snapshot file for archive: %w", err)
			}
			object := name + "/" + filepath.Base(path)
			if err := a.provider.Save(ctx, object, data); err != nil {
				return fmt.Errorf("archiving %s: %w", object, err)
			}
			uploaded++
		}
	}

	a.logger.Info("archived snapshot",
		zap.String("timestamp", timestamp),
		zap.Int("objects", uploaded),
	)
	return nil
}
