package ioworkers

import (
	"context"
	"io"
	"path"

	"github.com/colinmarc/hdfs/v2"
	"github.com/pkg/errors"
)

// HDFSBackend spills into an HDFS directory tree.
type HDFSBackend struct {
	client *hdfs.Client
	root   string
}

func NewHDFSBackend(client *hdfs.Client, root string) *HDFSBackend {
	return &HDFSBackend{client: client, root: root}
}

func (b *HDFSBackend) Scheme() string { return "hdfs" }

func (b *HDFSBackend) fullPath(key string) string { return path.Join(b.root, key) }

func (b *HDFSBackend) Write(_ context.Context, key string, data []byte) error {
	p := b.fullPath(key)
	if err := b.client.MkdirAll(path.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "hdfs backend: mkdir")
	}
	w, err := b.client.Create(p)
	if err != nil {
		return errors.Wrap(err, "hdfs backend: create")
	}
	defer w.Close()
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "hdfs backend: write")
	}
	return errors.Wrap(w.Close(), "hdfs backend: close")
}

func (b *HDFSBackend) ReadRange(_ context.Context, key string, offset, size uint64) ([]byte, error) {
	r, err := b.client.Open(b.fullPath(key))
	if err != nil {
		return nil, errors.Wrap(err, "hdfs backend: open")
	}
	defer r.Close()
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "hdfs backend: seek")
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "hdfs backend: read")
	}
	return buf, nil
}

func (b *HDFSBackend) Delete(_ context.Context, keys []string) error {
	var firstErr error
	for _, k := range keys {
		if err := b.client.Remove(b.fullPath(k)); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "hdfs backend: remove %s", k)
		}
	}
	return firstErr
}
