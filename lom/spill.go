package lom

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ray-project/lom/cmn"
	"github.com/ray-project/lom/cmn/cos"
	"github.com/ray-project/lom/cmn/nlog"
	"github.com/ray-project/lom/core"
)

// TryToSpillObjects is the Spill Planner entry point. It
// selects a prefix of `pinned`, in insertion order, skipping ids the
// SpillablePredicate rejects, stopping at max_fused_object_count. Unless
// spillAtLeastOne is set, a batch below min_spilling_size that has not
// reached max_fused_object_count is discarded rather than dispatched.
// Returns whether a batch was actually handed to an I/O worker.
func (m *Manager) TryToSpillObjects(spillAtLeastOne bool) bool {
	var dispatched bool
	m.call(func() { dispatched = m.tryToSpillOnReactor(spillAtLeastOne) })
	return dispatched
}

// SpillObjectUptoMaxThroughput is the memory-pressure entry point: it
// drives TryToSpillObjects in a loop, dispatching as many batches as the
// current pinned set and num_active_workers budget allow, until a round
// dispatches nothing. Returns the number of batches dispatched.
func (m *Manager) SpillObjectUptoMaxThroughput() int {
	var dispatched int
	for m.TryToSpillObjects(false) {
		dispatched++
	}
	return dispatched
}

func (m *Manager) tryToSpillOnReactor(spillAtLeastOne bool) bool {
	if !m.sem.TryAcquire(1) {
		return false // num_active_workers already at max_active_workers
	}

	var (
		selected []core.ObjectID
		bufs     []core.Buffer
		total    int64
	)
	for _, id := range m.reg.PinnedOrder() {
		if int64(len(selected)) >= m.cfg.MaxFusedObjectCount {
			break
		}
		if m.spillable != nil && !m.spillable(id) {
			continue
		}
		info, ok := m.reg.Info(id)
		if !ok {
			continue
		}
		buf, ok := m.reg.PinnedBuffer(id)
		if !ok {
			continue
		}
		selected = append(selected, id)
		bufs = append(bufs, buf)
		total += info.ObjectSize
	}

	metFusionTarget := int64(len(selected)) >= m.cfg.MaxFusedObjectCount
	if len(selected) == 0 || (!spillAtLeastOne && !metFusionTarget && total < m.cfg.MinSpillingSize) {
		m.sem.Release(1)
		return false
	}

	for _, id := range selected {
		m.reg.MoveToPendingSpill(id)
	}
	m.numActiveWorkers.Inc()
	go m.runSpillRPC(selected, bufs)
	return true
}

func (m *Manager) runSpillRPC(ids []core.ObjectID, bufs []core.Buffer) {
	reply, err := m.ioPool.SpillObjects(context.Background(), ids, bufs)
	if err != nil {
		err = errors.Wrapf(cmn.ErrSpillWorkerFailure, "%v", err)
	}
	m.post(func() { m.onSpillCompleted(ids, reply, err) })
}

// onSpillCompleted is the Spill Executor completion handler.
func (m *Manager) onSpillCompleted(ids []core.ObjectID, reply core.SpillReply, err error) {
	m.numActiveWorkers.Dec()
	m.sem.Release(1)

	if err != nil {
		m.onSpillFailed(ids, err)
		return
	}
	if len(reply.URLs) != len(ids) {
		m.onSpillFailed(ids, errors.Errorf("spill reply carries %d urls for %d objects", len(reply.URLs), len(ids)))
		return
	}
	for i, id := range ids {
		if buf := m.reg.CompleteSpill(id, reply.URLs[i]); buf != nil {
			buf.Release()
		}
	}
	// Every url of the batch is counted in url_refcount before any
	// freed-during-spill object gives its count back, so a fused file is
	// never queued for deletion while other objects of the batch use it.
	for i, id := range ids {
		if m.reg.IsFreed(id) {
			m.finalizeFreedAfterSpill(id)
			continue
		}
		m.reportSpilled(id, reply.URLs[i])
	}
}

// onSpillFailed returns every id in the batch to Pinned and applies an
// error-log-doubling backoff: the warning fires when cumulative
// failed-spill bytes reach next_spill_error_log_bytes, which then doubles.
func (m *Manager) onSpillFailed(ids []core.ObjectID, err error) {
	var bytes int64
	for _, id := range ids {
		m.reg.MoveToPinned(id)
		if info, ok := m.reg.Info(id); ok {
			bytes += info.ObjectSize
		}
	}
	m.cumulativeFailedSpillBytes += bytes
	if m.cfg.VerboseSpillLogBytes > 0 && m.cumulativeFailedSpillBytes >= m.nextSpillErrorLogBytes {
		nlog.Warningf("lom: spill failures have now dropped %s cumulative, latest: %v",
			cos.B2S(m.cumulativeFailedSpillBytes, 1), err)
		m.nextSpillErrorLogBytes *= 2
	}
}

// reportSpilled advertises a freshly spilled object off the reactor
// goroutine, so neither call can block table mutation. In filesystem
// mode the spill is only visible to this node, so it is published to the
// cluster-wide object directory; otherwise the external storage is
// reachable from any node and only the owner needs to know the URL.
func (m *Manager) reportSpilled(id core.ObjectID, u cos.ObjectURL) {
	info, ok := m.reg.Info(id)
	if !ok {
		return
	}
	owner := info.Owner
	selfNodeID := m.selfNodeID
	objDir := m.objDir
	ownerPool := m.ownerPool
	isFS := m.cfg.IsExternalStorageFS
	go func() {
		ctx := context.Background()
		if isFS {
			if err := objDir.ReportObjectSpilled(ctx, id, selfNodeID, u); err != nil {
				nlog.Warningf("lom: report spilled %s: %v", id, err)
			}
			return
		}
		client, err := ownerPool.Get(owner)
		if err != nil {
			nlog.Warningf("lom: owner client for %s: %v", id, err)
			return
		}
		if err := client.AddSpilledURL(ctx, id, u, selfNodeID); err != nil {
			nlog.Warningf("lom: add spilled url %s: %v", id, err)
		}
	}()
}
