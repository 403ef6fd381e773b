package gcs

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dealforge/dealforge-backend/internal/platform/envutil"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
)

// DocumentStore reads uploaded document bytes by storage path. The workflow
// core never writes objects; uploads are handled by the external upload API.
type DocumentStore interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	ReadAll(ctx context.Context, key string) ([]byte, error)
}

type bucketStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewDocumentStore(ctx context.Context, log *logger.Logger) (DocumentStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	bucket := envutil.String("GCS_DOCUMENTS_BUCKET", "")
	if bucket == "" {
		return nil, fmt.Errorf("missing GCS_DOCUMENTS_BUCKET")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &bucketStore{
		log:    log.With("service", "DocumentStore"),
		client: client,
		bucket: bucket,
	}, nil
}

func (s *bucketStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("document store not initialized")
	}
	if key == "" {
		return nil, fmt.Errorf("storage key required")
	}
	rctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(rctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *bucketStore) ReadAll(ctx context.Context, key string) ([]byte, error) {
	r, err := s.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return b, nil
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}
