// Package lom implements the Local Object Manager: the control plane that
// decides, for each object pinned in this node's plasma-like shared-memory
// store, when to keep it resident, spill it to external storage, restore
// it, or delete it.
//
// The whole package is single-threaded-cooperative: every table mutation
// runs on one reactor goroutine. Exported methods on Manager are safe to
// call from any goroutine; they simply hand a closure to the reactor and,
// where a return value is needed, block on a per-call result channel. The
// only state read without going through the reactor is the narrow set of
// atomics the plasma-store thread is allowed to touch directly
// (IsSpillingInProgress, FailedDeletionRequests).
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package lom

import (
	"context"
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"golang.org/x/sync/semaphore"

	"github.com/ray-project/lom/cmn"
	"github.com/ray-project/lom/cmn/mono"
	"github.com/ray-project/lom/cmn/nlog"
	"github.com/ray-project/lom/core"
)

// Deps bundles every external collaborator the control plane depends on,
// so that constructing a Manager names them all in one place (mirroring
// the reference codebase's habit of a single, wide constructor-args
// struct).
type Deps struct {
	SelfNodeID      string
	IOWorkers       core.IOWorkerPool
	Owners          core.OwnerClientPool
	Subscriber      core.Subscriber
	ObjectDirectory core.ObjectDirectory
	Spillable       core.SpillablePredicate
	OnObjectsFreed  core.FreedObjectsCallback

	// DQStore optionally makes delete_queue crash-safe. Nil disables
	// persistence; the queue then lives only in memory.
	DQStore core.DeleteQueueStore
}

type Manager struct {
	selfNodeID string
	cfg        *cmn.Config
	reg        *core.Registry

	ioPool    core.IOWorkerPool
	ownerPool core.OwnerClientPool
	sub       core.Subscriber
	objDir    core.ObjectDirectory
	spillable core.SpillablePredicate
	onFreed   core.FreedObjectsCallback
	dqStore   core.DeleteQueueStore

	// seenDeleted cheaply skips re-deleting a base-url a prior retry wave
	// already finished, without touching url_refcount. Reactor-owned
	// only.
	seenDeleted *cuckoo.CuckooFilter

	cmdCh chan func()
	stopCh chan struct{}

	sem *semaphore.Weighted // caps num_active_workers across spill+restore

	numActiveWorkers          cmn.Int64
	numFailedDeletionRequests cmn.Int64

	// spill error-log doubling state; reactor-owned only.
	cumulativeFailedSpillBytes int64
	nextSpillErrorLogBytes     int64

	// free flusher state; reactor-owned only.
	pendingFreed  []core.ObjectID
	lastFlushedAt int64

	// subscriptions opened by Pin, so ReleaseFreedObject/shutdown can tear
	// them down; keyed by ObjectID since each pin opens exactly one.
	subs map[core.ObjectID]core.SubscriptionHandle

	stats *Stats
}

func NewManager(cfg *cmn.Config, deps Deps) *Manager {
	m := &Manager{
		selfNodeID: deps.SelfNodeID,
		cfg:        cfg,
		reg:        core.NewRegistry(),
		ioPool:     deps.IOWorkers,
		ownerPool:  deps.Owners,
		sub:        deps.Subscriber,
		objDir:     deps.ObjectDirectory,
		spillable:  deps.Spillable,
		onFreed:    deps.OnObjectsFreed,
		dqStore:    deps.DQStore,
		seenDeleted: cuckoo.NewDefaultCuckooFilter(),
		cmdCh:      make(chan func(), 256),
		stopCh:     make(chan struct{}),
		sem:        semaphore.NewWeighted(cfg.MaxActiveWorkers),
		subs:       make(map[core.ObjectID]core.SubscriptionHandle),
	}
	m.nextSpillErrorLogBytes = cfg.VerboseSpillLogBytes
	m.lastFlushedAt = mono.NanoTime()
	m.stats = newStats()
	if m.dqStore != nil {
		if jobs, err := m.dqStore.Load(); err != nil {
			nlog.Warningf("lom: failed to load persisted delete queue: %v", err)
		} else {
			for _, j := range jobs {
				m.reg.EnqueueDeletion(j)
			}
		}
	}
	return m
}

// Run drives the reactor until ctx is cancelled or Stop is called. It must
// run in its own goroutine; every exported Manager method posts work to it
// rather than touching state directly.
func (m *Manager) Run(ctx context.Context) {
	period := m.cfg.FreeObjectsPeriod
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	nlog.Infoln("lom: reactor started")
	for {
		select {
		case <-ctx.Done():
			nlog.Infoln("lom: reactor stopping:", ctx.Err())
			return
		case <-m.stopCh:
			nlog.Infoln("lom: reactor stopped")
			return
		case fn := <-m.cmdCh:
			fn()
		case <-ticker.C:
			m.flushIfDueOnReactor()
		}
	}
}

func (m *Manager) Stop() { close(m.stopCh) }

// post hands fn to the reactor without waiting for it to run (used for
// async RPC callbacks re-entering the reactor).
func (m *Manager) post(fn func()) { m.cmdCh <- fn }

// call hands fn to the reactor and blocks until it has run, for
// synchronous, externally-observable operations.
func (m *Manager) call(fn func()) {
	done := make(chan struct{})
	m.cmdCh <- func() {
		fn()
		close(done)
	}
	<-done
}

// --- narrow cross-thread reads ----------------------------------------------

// IsSpillingInProgress may be called from the plasma-store thread without
// going through the reactor.
func (m *Manager) IsSpillingInProgress() bool { return m.numActiveWorkers.Load() > 0 }

// FailedDeletionRequests may likewise be read from any thread.
func (m *Manager) FailedDeletionRequests() int64 { return m.numFailedDeletionRequests.Load() }
