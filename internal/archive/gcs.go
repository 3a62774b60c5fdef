package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/dia-upm/muia-rag/internal/logging"
	"go.uber.org/zap"
)

// GCSProvider implements Provider over a Google Cloud Storage bucket.
// Authentication comes from Application Default Credentials.
type GCSProvider struct {
	client *storage.Client
	bucket string
}

// NewGCSProvider builds a GCS client and verifies the bucket is
// reachable, so misconfiguration fails at startup rather than at the
// first upload.
func NewGCSProvider(ctx context.Context, bucketName string) (*GCSProvider, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("closing GCS client after failed bucket check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("checking GCS bucket %q: %w", bucketName, err)
	}

	return &GCSProvider{client: client, bucket: bucketName}, nil
}

// Save uploads data to one object in the bucket. Close finalizes the
// upload, so its error is the upload's error.
func (g *GCSProvider) Save(ctx context.Context, objectName string, data []byte) error {
	wc := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)

	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			logging.L.Warn("closing GCS writer after failed write", zap.Error(closeErr))
		}
		return fmt.Errorf("writing GCS object %s: %w", objectName, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finalizing GCS object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSProvider) Close() error {
	return g.client.Close()
}
