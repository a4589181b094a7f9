package lom

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ray-project/lom/cmn"
	"github.com/ray-project/lom/cmn/cos"
	"github.com/ray-project/lom/core"
)

// restoreRetryBackoff is how long AsyncRestoreSpilledObject waits before
// re-attempting a restore that found no free worker slot. A short fixed
// delay keeps the retry from busy-looping the reactor while
// num_active_workers is saturated by spills.
const restoreRetryBackoff = 50 * time.Millisecond

// AsyncRestoreSpilledObject is the Restore Coordinator entry point.
// onDone is invoked exactly once, off the reactor goroutine, with nil on
// success or one of ErrDuplicateRestore, ErrObjectNotSpilled,
// ErrRestoreWorkerFailure.
func (m *Manager) AsyncRestoreSpilledObject(id core.ObjectID, onDone func(error)) {
	m.post(func() { m.startRestoreOnReactor(id, onDone) })
}

func (m *Manager) startRestoreOnReactor(id core.ObjectID, onDone func(error)) {
	u, ok := m.reg.SpilledURL(id)
	if !ok {
		invoke(onDone, cmn.ErrObjectNotSpilled)
		return
	}
	if m.reg.BeginRestore(id) {
		invoke(onDone, cmn.ErrDuplicateRestore)
		return
	}
	if !m.sem.TryAcquire(1) {
		m.reg.EndRestore(id)
		time.AfterFunc(restoreRetryBackoff, func() { m.AsyncRestoreSpilledObject(id, onDone) })
		return
	}
	m.numActiveWorkers.Inc()
	go m.runRestoreRPC(id, u, onDone)
}

func (m *Manager) runRestoreRPC(id core.ObjectID, u cos.ObjectURL, onDone func(error)) {
	err := m.ioPool.RestoreSpilledObject(context.Background(), id, u)
	if err != nil {
		err = errors.Wrapf(cmn.ErrRestoreWorkerFailure, "%v", err)
	}
	m.post(func() { m.onRestoreCompleted(id, err, onDone) })
}

func (m *Manager) onRestoreCompleted(id core.ObjectID, err error, onDone func(error)) {
	m.numActiveWorkers.Dec()
	m.sem.Release(1)
	m.reg.EndRestore(id)
	invoke(onDone, err)
}

func invoke(onDone func(error), err error) {
	if onDone != nil {
		go onDone(err)
	}
}
