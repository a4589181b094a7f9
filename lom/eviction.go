package lom

import "github.com/ray-project/lom/core"

// releaseFreedObjectOnReactor is the owner-eviction handler. It is
// reached from two places: a genuine eviction notification (pub/sub
// message or WaitForRefRemoved resolving) and, for objects still in
// flight, the deferred finalization once a spill completes.
func (m *Manager) releaseFreedObjectOnReactor(id core.ObjectID) {
	if handle, ok := m.subs[id]; ok {
		handle.Unsubscribe()
		delete(m.subs, id)
	}

	switch m.reg.Residence(id) {
	case core.Pinned:
		buf, _, ok := m.reg.RemovePinned(id)
		if !ok {
			return
		}
		buf.Release()
		m.reg.MarkPendingDeletion(id)
		m.enqueueFreed(id)

	case core.PendingSpill:
		// The spill already in flight must complete before this object's
		// URL/refcount exist to release; defer via IsFreed.
		m.reg.MarkFreedDuringSpill(id)

	case core.Spilled:
		u, refZero, ok := m.reg.RemoveSpilled(id)
		if !ok {
			return
		}
		m.enqueueFreed(id)
		if refZero {
			m.enqueueDeletion(u.BaseURL, []core.ObjectID{id})
		}

	default:
		// Not registered (duplicate notification, or already released by
		// the other detector): nothing to do.
	}
}

// ObjectPendingDeletion reports whether id was freed while Pinned and
// is now just waiting out its local plasma eviction
// notification as a no-op.
func (m *Manager) ObjectPendingDeletion(id core.ObjectID) bool {
	var v bool
	m.call(func() { v = m.reg.ObjectPendingDeletion(id) })
	return v
}

// finalizeFreedAfterSpill runs immediately after CompleteSpill for an id
// whose IsFreed flag was set while it was PendingSpill: now that the
// object has a spilled_url, it can be released through the ordinary
// Spilled-state path.
func (m *Manager) finalizeFreedAfterSpill(id core.ObjectID) {
	m.releaseFreedObjectOnReactor(id)
}
