package ioworkers

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// S3Backend spills to an S3-compatible bucket. One of the pluggable
// external-storage targets a deployment can pick for ioworkers.Pool.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Backend(client *s3.Client, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

func (b *S3Backend) Scheme() string { return "s3" }

func (b *S3Backend) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *S3Backend) Write(ctx context.Context, key string, data []byte) error {
	uploader := manager.NewUploader(b.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	return errors.Wrap(err, "s3 backend: upload")
}

func (b *S3Backend) ReadRange(ctx context.Context, key string, offset, size uint64) ([]byte, error) {
	rng := fmt.Sprintf("bytes=%d-%d", offset, offset+size-1)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
		Range:  aws.String(rng),
	})
	if err != nil {
		return nil, errors.Wrap(err, "s3 backend: get object")
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	return data, errors.Wrap(err, "s3 backend: read body")
}

func (b *S3Backend) Delete(ctx context.Context, keys []string) error {
	var firstErr error
	for _, k := range keys {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.objectKey(k)),
		})
		if err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "s3 backend: delete %s", k)
		}
	}
	return firstErr
}
