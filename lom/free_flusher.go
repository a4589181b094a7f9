package lom

import (
	"github.com/ray-project/lom/cmn/mono"
	"github.com/ray-project/lom/core"
)

// enqueueFreed records id as released since the last flush, flushing
// immediately if free_objects_batch_size is reached.
func (m *Manager) enqueueFreed(id core.ObjectID) {
	m.pendingFreed = append(m.pendingFreed, id)
	if len(m.pendingFreed) >= m.cfg.FreeObjectsBatchSize {
		m.flushFreedOnReactor()
	}
}

// flushIfDueOnReactor runs on every reactor tick (see Run); it flushes a
// non-empty batch once free_objects_period has elapsed since the last
// flush, independent of batch size.
func (m *Manager) flushIfDueOnReactor() {
	if len(m.pendingFreed) == 0 {
		return
	}
	if mono.Since(m.lastFlushedAt) >= m.cfg.FreeObjectsPeriod {
		m.flushFreedOnReactor()
	}
}

func (m *Manager) flushFreedOnReactor() {
	if len(m.pendingFreed) == 0 {
		return
	}
	batch := m.pendingFreed
	m.pendingFreed = nil
	m.lastFlushedAt = mono.NanoTime()
	if m.onFreed != nil {
		cb := m.onFreed
		go cb(batch)
	}
}

// FlushFreeObjects forces an immediate flush regardless of batch size or
// elapsed time, e.g. on graceful shutdown.
func (m *Manager) FlushFreeObjects() {
	m.call(func() { m.flushFreedOnReactor() })
}
