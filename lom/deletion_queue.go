package lom

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ray-project/lom/cmn"
	"github.com/ray-project/lom/cmn/nlog"
	"github.com/ray-project/lom/core"
)

// enqueueDeletion is called with a base-url whose refcount just hit
// zero: it becomes the origin-tracking entry for a delete_queue job,
// seeded with the configured retry budget.
func (m *Manager) enqueueDeletion(baseURL string, originIDs []core.ObjectID) {
	m.reg.EnqueueDeletion(&core.DeletionJob{
		BaseURL:     baseURL,
		OriginIDs:   originIDs,
		RetriesLeft: m.cfg.SpilledObjectDeleteRetries,
	})
	m.persistDeleteQueue()
}

// ProcessSpilledObjectsDeleteQueue is the Deletion Queue's drain entry
// point. It pops up to batchSize jobs and issues a single
// DeleteSpilledObjects RPC for them. Returns false only when the queue
// was empty; it also returns true when every popped job was skipped as
// already deleted and no RPC was issued.
func (m *Manager) ProcessSpilledObjectsDeleteQueue(batchSize int) bool {
	var dispatched bool
	m.call(func() { dispatched = m.processDeleteQueueOnReactor(batchSize) })
	return dispatched
}

func (m *Manager) processDeleteQueueOnReactor(batchSize int) bool {
	jobs := m.reg.PopDeletions(batchSize)
	if len(jobs) == 0 {
		return false
	}

	var toDelete []*core.DeletionJob
	for _, j := range jobs {
		if m.seenDeleted.Lookup([]byte(j.BaseURL)) {
			// A prior retry wave already finished this base-url; drop
			// the stale duplicate without touching url_refcount again.
			continue
		}
		toDelete = append(toDelete, j)
	}
	m.persistDeleteQueue()
	if len(toDelete) == 0 {
		return true
	}

	urls := make([]string, len(toDelete))
	for i, j := range toDelete {
		urls[i] = j.BaseURL
	}
	go m.runDeleteRPC(toDelete, urls)
	return true
}

func (m *Manager) runDeleteRPC(jobs []*core.DeletionJob, urls []string) {
	err := m.ioPool.DeleteSpilledObjects(context.Background(), urls)
	m.post(func() { m.onDeleteCompleted(jobs, err) })
}

func (m *Manager) onDeleteCompleted(jobs []*core.DeletionJob, err error) {
	if err == nil {
		for _, j := range jobs {
			m.seenDeleted.InsertUnique([]byte(j.BaseURL))
		}
		return
	}
	m.numFailedDeletionRequests.Inc()
	m.stats.failedDeletions.Inc()
	wrapped := errors.Wrapf(cmn.ErrDeleteFailure, "%v", err)
	for _, j := range jobs {
		j.RetriesLeft--
		if j.RetriesLeft > 0 {
			m.reg.EnqueueDeletion(j)
			continue
		}
		nlog.Errorf("lom: exhausted delete retries for base-url %s, dropping: %v", j.BaseURL, wrapped)
	}
	m.persistDeleteQueue()
}

// persistDeleteQueue snapshots delete_queue to the optional DQStore. A
// no-op when Deps.DQStore was left nil.
func (m *Manager) persistDeleteQueue() {
	if m.dqStore == nil {
		return
	}
	jobs := m.reg.SnapshotDeleteQueue()
	store := m.dqStore
	go func() {
		if err := store.Persist(jobs); err != nil {
			nlog.Warningf("lom: persist delete queue: %v", err)
		}
	}()
}
