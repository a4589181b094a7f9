package lom

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ray-project/lom/cmn"
	"github.com/ray-project/lom/cmn/cos"
	"github.com/ray-project/lom/core"
)

// --- fakes -------------------------------------------------------------------

type fakeBuf struct {
	size     int64
	released bool
}

func (b *fakeBuf) Size() int64 { return b.size }
func (b *fakeBuf) Release()    { b.released = true }

func mkID(b byte) core.ObjectID {
	var id core.ObjectID
	id[0] = b
	return id
}

// fakeIOWorkers spills every object to one fused url per call and never
// fails, unless spillErr/restoreErr/deleteErr is set.
type fakeIOWorkers struct {
	mu          sync.Mutex
	spillErr    error
	restoreErr  error
	deleteErr   error
	spillCalls  int
	deleteCalls int
	nextBase    int
	restoreGate chan struct{} // if non-nil, RestoreSpilledObject blocks on it
}

func (f *fakeIOWorkers) SpillObjects(_ context.Context, ids []core.ObjectID, bufs []core.Buffer) (core.SpillReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spillCalls++
	if f.spillErr != nil {
		return core.SpillReply{}, f.spillErr
	}
	f.nextBase++
	base := "fake://bucket/obj" + string(rune('a'+f.nextBase))
	var off uint64
	urls := make([]cos.ObjectURL, len(ids))
	for i := range ids {
		sz := uint64(bufs[i].Size())
		urls[i] = cos.ObjectURL{BaseURL: base, Offset: off, Size: sz}
		off += sz
	}
	return core.SpillReply{URLs: urls}, nil
}

func (f *fakeIOWorkers) RestoreSpilledObject(_ context.Context, _ core.ObjectID, _ cos.ObjectURL) error {
	if f.restoreGate != nil {
		<-f.restoreGate
	}
	return f.restoreErr
}

func (f *fakeIOWorkers) DeleteSpilledObjects(_ context.Context, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return f.deleteErr
}

type fakeOwnerClient struct{}

func (fakeOwnerClient) WaitForRefRemoved(ctx context.Context, id, generatorID core.ObjectID) error {
	<-ctx.Done() // never resolves on its own in tests; eviction comes via Subscriber
	return ctx.Err()
}
func (fakeOwnerClient) AddSpilledURL(context.Context, core.ObjectID, cos.ObjectURL, string) error {
	return nil
}

type fakeOwnerPool struct{}

func (fakeOwnerPool) Get(core.OwnerAddress) (core.OwnerClient, error) { return fakeOwnerClient{}, nil }

type fakeSubHandle struct{ unsubscribed *bool }

func (h fakeSubHandle) Unsubscribe() { *h.unsubscribed = true }

type fakeSubscriber struct {
	mu      sync.Mutex
	onMsg   map[core.ObjectID]func()
	unsubed map[core.ObjectID]*bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{onMsg: make(map[core.ObjectID]func()), unsubed: make(map[core.ObjectID]*bool)}
}

func (s *fakeSubscriber) Subscribe(_ core.OwnerAddress, id core.ObjectID, onMessage func(), _ func(error)) core.SubscriptionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMsg[id] = onMessage
	flag := new(bool)
	s.unsubed[id] = flag
	return fakeSubHandle{unsubscribed: flag}
}

// evict synchronously invokes the stored onMessage callback for id, as if
// the pub/sub layer just delivered an eviction notice.
func (s *fakeSubscriber) evict(id core.ObjectID) {
	s.mu.Lock()
	fn := s.onMsg[id]
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeObjectDirectory struct{}

func (fakeObjectDirectory) ReportObjectSpilled(context.Context, core.ObjectID, string, cos.ObjectURL) error {
	return nil
}
func (fakeObjectDirectory) ReportObjectFreed(context.Context, core.ObjectID) error { return nil }

func alwaysSpillable(core.ObjectID) bool { return true }

func newTestManager(cfg *cmn.Config, ioPool core.IOWorkerPool, sub core.Subscriber) (*Manager, func()) {
	if cfg == nil {
		cfg = cmn.DefaultConfig()
		cfg.MinSpillingSize = 0
		cfg.MaxActiveWorkers = 2
		cfg.FreeObjectsBatchSize = 2
		cfg.FreeObjectsPeriod = time.Hour // disable time-based flush by default in tests
	}
	if sub == nil {
		sub = newFakeSubscriber()
	}
	var freedBatches [][]core.ObjectID
	var freedMu sync.Mutex
	m := NewManager(cfg, Deps{
		SelfNodeID:      "node-1",
		IOWorkers:       ioPool,
		Owners:          fakeOwnerPool{},
		Subscriber:      sub,
		ObjectDirectory: fakeObjectDirectory{},
		Spillable:       alwaysSpillable,
		OnObjectsFreed: func(ids []core.ObjectID) {
			freedMu.Lock()
			freedBatches = append(freedBatches, ids)
			freedMu.Unlock()
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	return m, cancel
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPinThenSpillRecordsURL(t *testing.T) {
	io := &fakeIOWorkers{}
	m, cancel := newTestManager(nil, io, nil)
	defer cancel()

	id := mkID(1)
	owner := core.OwnerAddress{WorkerID: "w1"}
	m.Pin(id, &fakeBuf{size: 10}, owner, core.NilObjectID)

	waitUntil(t, time.Second, func() bool { return m.GetPrimaryBytes() == 10 })

	if !m.TryToSpillObjects(true) {
		t.Fatal("expected spill to dispatch")
	}
	waitUntil(t, time.Second, func() bool { return m.HasLocallySpilledObjects() })

	if m.GetPrimaryBytes() != 0 {
		t.Fatalf("primary bytes after spill = %d, want 0", m.GetPrimaryBytes())
	}
	if _, ok := m.GetLocalSpilledObjectURL(id); !ok {
		t.Fatal("expected a spilled url to be recorded")
	}
}

func TestTryToSpillObjectsRespectsMinSize(t *testing.T) {
	io := &fakeIOWorkers{}
	cfg := cmn.DefaultConfig()
	cfg.MinSpillingSize = 1000
	cfg.MaxActiveWorkers = 2
	cfg.FreeObjectsBatchSize = 100
	cfg.FreeObjectsPeriod = time.Hour
	m, cancel := newTestManager(cfg, io, nil)
	defer cancel()

	id := mkID(1)
	m.Pin(id, &fakeBuf{size: 10}, core.OwnerAddress{WorkerID: "w1"}, core.NilObjectID)
	waitUntil(t, time.Second, func() bool { return m.GetPrimaryBytes() == 10 })

	if m.TryToSpillObjects(false) {
		t.Fatal("batch below min_spilling_size must not dispatch without spill-at-least-one")
	}
	if !m.TryToSpillObjects(true) {
		t.Fatal("spill-at-least-one must override min_spilling_size")
	}
}

func TestSpillWorkerFailureReturnsObjectsToPinned(t *testing.T) {
	io := &fakeIOWorkers{spillErr: cmn.ErrSpillWorkerFailure}
	m, cancel := newTestManager(nil, io, nil)
	defer cancel()

	id := mkID(1)
	m.Pin(id, &fakeBuf{size: 10}, core.OwnerAddress{WorkerID: "w1"}, core.NilObjectID)
	waitUntil(t, time.Second, func() bool { return m.GetPrimaryBytes() == 10 })

	m.TryToSpillObjects(true)
	waitUntil(t, time.Second, func() bool { return !m.IsSpillingInProgress() })

	if m.GetPrimaryBytes() != 10 {
		t.Fatalf("primary bytes after failed spill = %d, want 10 (object must return to pinned)", m.GetPrimaryBytes())
	}
}

func TestEvictionDuringPendingSpillDefersRelease(t *testing.T) {
	io := &fakeIOWorkers{}
	sub := newFakeSubscriber()
	m, cancel := newTestManager(nil, io, sub)
	defer cancel()

	id := mkID(1)
	m.Pin(id, &fakeBuf{size: 10}, core.OwnerAddress{WorkerID: "w1"}, core.NilObjectID)
	waitUntil(t, time.Second, func() bool { return m.GetPrimaryBytes() == 10 })

	m.TryToSpillObjects(true) // moves id into pending_spill
	sub.evict(id)             // eviction while pending-spill must defer, not crash or double-free

	// After the spill completes, the deferred free must finalize: the
	// spilled entry is removed again and, refcount hitting zero, a
	// deletion job is enqueued.
	waitUntil(t, time.Second, func() bool {
		var s ObjectStoreStats
		m.FillObjectStoreStats(&s)
		return s.SpilledCount == 0 && s.DeleteQueueLength == 1
	})
}

func TestRestoreDuplicateRejected(t *testing.T) {
	io := &fakeIOWorkers{restoreGate: make(chan struct{})}
	m, cancel := newTestManager(nil, io, nil)
	defer cancel()

	id := mkID(1)
	m.Pin(id, &fakeBuf{size: 10}, core.OwnerAddress{WorkerID: "w1"}, core.NilObjectID)
	waitUntil(t, time.Second, func() bool { return m.GetPrimaryBytes() == 10 })
	m.TryToSpillObjects(true)
	waitUntil(t, time.Second, func() bool { return m.HasLocallySpilledObjects() })

	first := make(chan error, 1)
	m.AsyncRestoreSpilledObject(id, func(err error) { first <- err })
	waitUntil(t, time.Second, func() bool {
		var s ObjectStoreStats
		m.FillObjectStoreStats(&s)
		return s.PendingRestoreCount == 1
	})

	second := make(chan error, 1)
	m.AsyncRestoreSpilledObject(id, func(err error) { second <- err })

	select {
	case err := <-second:
		if err != cmn.ErrDuplicateRestore {
			t.Fatalf("second concurrent restore = %v, want ErrDuplicateRestore", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected immediate ErrDuplicateRestore for concurrent restore")
	}
	close(io.restoreGate)
	if err := <-first; err != nil {
		t.Fatalf("first restore = %v, want nil", err)
	}
}

func TestDeleteQueueRetriesThenGivesUp(t *testing.T) {
	io := &fakeIOWorkers{deleteErr: cmn.ErrDeleteFailure}
	cfg := cmn.DefaultConfig()
	cfg.MinSpillingSize = 0
	cfg.MaxActiveWorkers = 2
	cfg.FreeObjectsBatchSize = 1
	cfg.FreeObjectsPeriod = time.Hour
	cfg.SpilledObjectDeleteRetries = 2
	sub := newFakeSubscriber()
	m, cancel := newTestManager(cfg, io, sub)
	defer cancel()

	id := mkID(1)
	m.Pin(id, &fakeBuf{size: 10}, core.OwnerAddress{WorkerID: "w1"}, core.NilObjectID)
	waitUntil(t, time.Second, func() bool { return m.GetPrimaryBytes() == 10 })
	m.TryToSpillObjects(true)
	waitUntil(t, time.Second, func() bool { return m.HasLocallySpilledObjects() })

	sub.evict(id)
	waitUntil(t, time.Second, func() bool {
		var s ObjectStoreStats
		m.FillObjectStoreStats(&s)
		return s.DeleteQueueLength == 1
	})

	for i := 0; i < 2; i++ {
		if !m.ProcessSpilledObjectsDeleteQueue(10) {
			t.Fatalf("round %d: expected a batch to dispatch", i)
		}
		waitUntil(t, time.Second, func() bool { return m.FailedDeletionRequests() == int64(i+1) })
	}
	// retry budget (2) exhausted: the job must not be re-enqueued a third time.
	var s ObjectStoreStats
	m.FillObjectStoreStats(&s)
	if s.DeleteQueueLength != 0 {
		t.Fatalf("delete queue length = %d, want 0 once retries are exhausted", s.DeleteQueueLength)
	}
}
