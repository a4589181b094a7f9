package ioworkers

import (
	"bytes"
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/pkg/errors"
)

// AzureBackend spills to an Azure Blob Storage container.
type AzureBackend struct {
	client    *azblob.Client
	container string
}

func NewAzureBackend(client *azblob.Client, container string) *AzureBackend {
	return &AzureBackend{client: client, container: container}
}

func (b *AzureBackend) Scheme() string { return "azure" }

func (b *AzureBackend) Write(ctx context.Context, key string, data []byte) error {
	_, err := b.client.UploadBuffer(ctx, b.container, key, data, nil)
	return errors.Wrap(err, "azure backend: upload")
}

func (b *AzureBackend) ReadRange(ctx context.Context, key string, offset, size uint64) ([]byte, error) {
	o := int64(offset)
	c := int64(size)
	resp, err := b.client.DownloadStream(ctx, b.container, key, &azblob.DownloadStreamOptions{
		Range: blob.HTTPRange{Offset: o, Count: c},
	})
	if err != nil {
		return nil, errors.Wrap(err, "azure backend: download")
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, errors.Wrap(err, "azure backend: read body")
	}
	return buf.Bytes(), nil
}

func (b *AzureBackend) Delete(ctx context.Context, keys []string) error {
	var firstErr error
	for _, k := range keys {
		if _, err := b.client.DeleteBlob(ctx, b.container, k, nil); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "azure backend: delete %s", k)
		}
	}
	return firstErr
}
