package ioworkers

import (
	"bytes"
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
)

// GCSBackend spills to a Google Cloud Storage bucket.
type GCSBackend struct {
	client *storage.Client
	bucket string
}

func NewGCSBackend(client *storage.Client, bucket string) *GCSBackend {
	return &GCSBackend{client: client, bucket: bucket}
}

func (b *GCSBackend) Scheme() string { return "gs" }

func (b *GCSBackend) Write(ctx context.Context, key string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Wrap(err, "gcs backend: write")
	}
	return errors.Wrap(w.Close(), "gcs backend: close writer")
}

func (b *GCSBackend) ReadRange(ctx context.Context, key string, offset, size uint64) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewRangeReader(ctx, int64(offset), int64(size))
	if err != nil {
		return nil, errors.Wrap(err, "gcs backend: open range reader")
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, errors.Wrap(err, "gcs backend: read body")
	}
	return buf.Bytes(), nil
}

func (b *GCSBackend) Delete(ctx context.Context, keys []string) error {
	var firstErr error
	for _, k := range keys {
		if err := b.client.Bucket(b.bucket).Object(k).Delete(ctx); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "gcs backend: delete %s", k)
		}
	}
	return firstErr
}
