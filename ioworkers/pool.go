package ioworkers

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/ray-project/lom/cmn/cos"
	"github.com/ray-project/lom/core"
)

var _ core.IOWorkerPool = (*Pool)(nil)

// Pool is a single blobBackend fronted by a concurrency cap standing in
// for the real I/O worker pool's bounded subprocess count.
type Pool struct {
	backend blobBackend
	sem     *semaphore.Weighted
}

func NewPool(backend blobBackend, maxConcurrent int64) *Pool {
	return &Pool{backend: backend, sem: semaphore.NewWeighted(maxConcurrent)}
}

// SpillObjects fuses every buffer into one backend object: a single
// Write call, one base-url, offsets assigned in input order.
func (p *Pool) SpillObjects(ctx context.Context, ids []core.ObjectID, bufs []core.Buffer) (core.SpillReply, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return core.SpillReply{}, err
	}
	defer p.sem.Release(1)

	key := p.backend.Scheme() + "://" + uuid.NewString()
	urls := make([]cos.ObjectURL, len(ids))
	var fused []byte
	var off uint64
	for i, buf := range bufs {
		r, ok := buf.(Readable)
		if !ok {
			return core.SpillReply{}, errors.Errorf("object %s: buffer not readable by this reference worker", ids[i])
		}
		data := r.Bytes()
		fused = append(fused, data...)
		urls[i] = cos.ObjectURL{BaseURL: key, Offset: off, Size: uint64(len(data))}
		off += uint64(len(data))
	}
	if err := p.backend.Write(ctx, key, fused); err != nil {
		return core.SpillReply{}, errors.Wrap(err, "spill write")
	}
	return core.SpillReply{URLs: urls}, nil
}

func (p *Pool) RestoreSpilledObject(ctx context.Context, id core.ObjectID, u cos.ObjectURL) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	if _, err := p.backend.ReadRange(ctx, u.BaseURL, u.Offset, u.Size); err != nil {
		return errors.Wrapf(err, "restore %s", id)
	}
	return nil
}

func (p *Pool) DeleteSpilledObjects(ctx context.Context, baseURLs []string) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return p.backend.Delete(ctx, baseURLs)
}
