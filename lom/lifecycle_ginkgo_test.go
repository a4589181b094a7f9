package lom

import (
	"context"
	"time"

	"github.com/ray-project/lom/cmn"
	"github.com/ray-project/lom/core"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pin/subscription lifecycle", func() {
	var (
		io     *fakeIOWorkers
		sub    *fakeSubscriber
		mgr    *Manager
		cancel context.CancelFunc
		owner  = core.OwnerAddress{WorkerID: "w1"}
	)

	BeforeEach(func() {
		io = &fakeIOWorkers{}
		sub = newFakeSubscriber()
		cfg := cmn.DefaultConfig()
		cfg.MinSpillingSize = 0
		cfg.MaxActiveWorkers = 2
		cfg.FreeObjectsBatchSize = 1
		cfg.FreeObjectsPeriod = time.Hour
		mgr, cancel = newTestManager(cfg, io, sub)
	})

	AfterEach(func() { cancel() })

	Describe("a freshly pinned object", func() {
		It("becomes visible in pinned_bytes and is released on eviction", func() {
			id := mkID(7)
			mgr.Pin(id, &fakeBuf{size: 42}, owner, core.NilObjectID)
			Eventually(mgr.GetPrimaryBytes).Should(BeEquivalentTo(42))

			sub.evict(id)
			Eventually(mgr.GetPrimaryBytes).Should(BeEquivalentTo(0))
		})

		It("is idempotent under a duplicate Pin", func() {
			id := mkID(8)
			dup := &fakeBuf{size: 99}
			mgr.Pin(id, &fakeBuf{size: 10}, owner, core.NilObjectID)
			Eventually(mgr.GetPrimaryBytes).Should(BeEquivalentTo(10))

			mgr.Pin(id, dup, owner, core.NilObjectID)
			Consistently(mgr.GetPrimaryBytes, 100*time.Millisecond).Should(BeEquivalentTo(10))
			Eventually(func() bool { return dup.released }).Should(BeTrue())
		})
	})
})

var _ = Describe("Deletion queue retry state machine", func() {
	var (
		io     *fakeIOWorkers
		sub    *fakeSubscriber
		mgr    *Manager
		cancel context.CancelFunc
		owner  = core.OwnerAddress{WorkerID: "w1"}
	)

	BeforeEach(func() {
		io = &fakeIOWorkers{}
		sub = newFakeSubscriber()
		cfg := cmn.DefaultConfig()
		cfg.MinSpillingSize = 0
		cfg.MaxActiveWorkers = 2
		cfg.FreeObjectsBatchSize = 1
		cfg.FreeObjectsPeriod = time.Hour
		cfg.SpilledObjectDeleteRetries = 3
		mgr, cancel = newTestManager(cfg, io, sub)
	})

	AfterEach(func() { cancel() })

	It("re-enqueues a failed batch until the retry budget is exhausted, then drops it", func() {
		id := mkID(9)
		mgr.Pin(id, &fakeBuf{size: 5}, owner, core.NilObjectID)
		Eventually(mgr.GetPrimaryBytes).Should(BeEquivalentTo(5))
		mgr.TryToSpillObjects(true)
		Eventually(mgr.HasLocallySpilledObjects).Should(BeTrue())

		sub.evict(id)
		Eventually(func() int {
			var s ObjectStoreStats
			mgr.FillObjectStoreStats(&s)
			return s.DeleteQueueLength
		}).Should(Equal(1))

		io.mu.Lock()
		io.deleteErr = cmn.ErrDeleteFailure
		io.mu.Unlock()

		for i := 1; i <= 3; i++ {
			Expect(mgr.ProcessSpilledObjectsDeleteQueue(10)).To(BeTrue())
			Eventually(mgr.FailedDeletionRequests).Should(BeEquivalentTo(int64(i)))
		}

		var s ObjectStoreStats
		mgr.FillObjectStoreStats(&s)
		Expect(s.DeleteQueueLength).To(Equal(0), "retry budget exhausted: job must be dropped, not re-enqueued forever")
	})
})
