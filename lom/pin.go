package lom

import (
	"context"

	"github.com/ray-project/lom/cmn/nlog"
	"github.com/ray-project/lom/core"
)

// Pin registers id as resident. buf is released immediately, without
// ever reaching an I/O worker, if id is already known (idempotent
// re-pin).
//
// Pin opens two independent eviction detectors, mirroring the reference
// raylet's belt-and-suspenders approach to a notoriously lossy pub/sub
// layer: a long-lived subscription for the fast path, and a one-shot
// owner RPC that resolves once the owner's ref count actually hits zero.
// Whichever fires first releases the object and tears down the
// subscription. The owner RPC runs on a context that is never cancelled;
// when it resolves after the subscription already fired, its result is
// handled as one more eviction notice for id.
func (m *Manager) Pin(id core.ObjectID, buf core.Buffer, owner core.OwnerAddress, generatorID core.ObjectID) {
	m.post(func() { m.pinOnReactor(id, buf, owner, generatorID) })
}

func (m *Manager) pinOnReactor(id core.ObjectID, buf core.Buffer, owner core.OwnerAddress, generatorID core.ObjectID) {
	if !m.reg.Pin(id, buf, owner, generatorID, buf.Size()) {
		return
	}
	m.openEvictionDetectors(id, owner, generatorID)
}

func (m *Manager) openEvictionDetectors(id core.ObjectID, owner core.OwnerAddress, generatorID core.ObjectID) {
	handle := m.sub.Subscribe(owner, id,
		func() { m.post(func() { m.onObjectEvicted(id) }) },
		func(err error) { m.post(func() { m.onOwnerUnreachable(id, err) }) },
	)
	m.subs[id] = handle

	client, err := m.ownerPool.Get(owner)
	if err != nil {
		nlog.Warningf("lom: no owner client for %s (generator=%v): %v", id, generatorID.IsNil(), err)
		return
	}
	go func() {
		err := client.WaitForRefRemoved(context.Background(), id, generatorID)
		if err != nil {
			m.post(func() { m.onOwnerUnreachable(id, err) })
			return
		}
		m.post(func() { m.onObjectEvicted(id) })
	}()
}

func (m *Manager) onObjectEvicted(id core.ObjectID) {
	m.releaseFreedObjectOnReactor(id)
}

func (m *Manager) onOwnerUnreachable(id core.ObjectID, err error) {
	nlog.Warningf("lom: owner unreachable for %s: %v", id, err)
	m.releaseFreedObjectOnReactor(id)
}
