package ioworkers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/karrick/godirwalk"
	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/ray-project/lom/cmn/nlog"
)

// FSBackend spills to the local filesystem, for the common
// is_external_storage_fs deployment. Spilled files are lz4-compressed
// and checksummed with blake2b so a restore can detect silent corruption
// instead of handing back garbage bytes.
type FSBackend struct {
	root string
}

func NewFSBackend(root string) *FSBackend { return &FSBackend{root: root} }

func (b *FSBackend) Scheme() string { return "file" }

// shard spreads spilled files across 256 sub-directories by the xxhash of
// their key, mirroring the corpus's mountpath-sharding habit at GC-sweep
// scale (cf. lru jogger).
func (b *FSBackend) shard(name string) string {
	h := xxhash.ChecksumString64(name)
	return fmt.Sprintf("%02x", byte(h))
}

func (b *FSBackend) path(key string) string {
	name := key
	if i := strings.Index(key, "://"); i >= 0 {
		name = key[i+3:]
	}
	return filepath.Join(b.root, b.shard(name), name)
}

func (b *FSBackend) Write(_ context.Context, key string, data []byte) error {
	p := b.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "fs backend: mkdir")
	}
	f, err := os.Create(p)
	if err != nil {
		return errors.Wrap(err, "fs backend: create")
	}
	defer f.Close()

	zw := lz4.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		return errors.Wrap(err, "fs backend: compress")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "fs backend: flush compressor")
	}
	sum := blake2b.Sum256(data)
	return errors.Wrap(os.WriteFile(p+".sum", sum[:], 0o644), "fs backend: write checksum")
}

func (b *FSBackend) ReadRange(_ context.Context, key string, offset, size uint64) ([]byte, error) {
	p := b.path(key)
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.Wrap(err, "fs backend: open")
	}
	defer f.Close()

	data, err := io.ReadAll(lz4.NewReader(f))
	if err != nil {
		return nil, errors.Wrap(err, "fs backend: decompress")
	}
	if wantSum, err := os.ReadFile(p + ".sum"); err == nil {
		gotSum := blake2b.Sum256(data)
		if !bytes.Equal(gotSum[:], wantSum) {
			return nil, errors.Errorf("fs backend: checksum mismatch for %s, spilled file corrupted", key)
		}
	}
	if offset+size > uint64(len(data)) {
		return nil, errors.Errorf("fs backend: range %d+%d exceeds object size %d", offset, size, len(data))
	}
	return data[offset : offset+size], nil
}

func (b *FSBackend) Delete(_ context.Context, keys []string) error {
	var firstErr error
	for _, k := range keys {
		p := b.path(k)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = errors.Wrapf(err, "fs backend: remove %s", k)
		}
		os.Remove(p + ".sum")
	}
	return firstErr
}

// Reconcile walks root and reports files whose name has no entry in
// known, so a host can clean up what a crash left behind. Entries of
// known are file names: base-urls (typically the node's current
// spilled_url entries at startup) with the "file://" scheme cut off, as
// the file name is compared, not the full base-url. Grounded in the corpus's
// own mountpath-jogger GC sweep pattern (cf. lru jogger, space-cleanup
// xaction).
func (b *FSBackend) Reconcile(known map[string]struct{}) ([]string, error) {
	var orphans []string
	err := godirwalk.Walk(b.root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() || strings.HasSuffix(path, ".sum") {
				return nil
			}
			name := filepath.Base(path)
			if _, ok := known[name]; !ok {
				orphans = append(orphans, path)
			}
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			nlog.Warningf("fs backend: reconcile skipping %s: %v", path, err)
			return godirwalk.SkipNode
		},
	})
	return orphans, errors.Wrap(err, "fs backend: reconcile")
}
