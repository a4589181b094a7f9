package lom

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ray-project/lom/cmn/cos"
	"github.com/ray-project/lom/core"
)

// Stats/Introspection: a handful of synchronous table snapshots plus a
// Prometheus-backed counter/gauge set. Every gauge is
// refreshed from the reactor via RecordMetrics rather than read directly
// by the collector, so scraping never races table mutation. The
// collectors are registered once on the default Prometheus registry, and
// every Manager in the process shares that one Stats.
type Stats struct {
	pinnedBytes     prometheus.Gauge
	pinnedCount     prometheus.Gauge
	pendingSpill    prometheus.Gauge
	spilledCount    prometheus.Gauge
	activeWorkers   prometheus.Gauge
	deleteQueueLen  prometheus.Gauge
	failedDeletions prometheus.Counter
}

var (
	statsOnce   sync.Once
	sharedStats *Stats
)

func newStats() *Stats {
	statsOnce.Do(func() { sharedStats = buildStats() })
	return sharedStats
}

func buildStats() *Stats {
	return &Stats{
		pinnedBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "lom", Name: "pinned_bytes", Help: "Cumulative bytes held in pinned+pending_spill.",
		}),
		pinnedCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "lom", Name: "pinned_objects", Help: "Objects currently Pinned.",
		}),
		pendingSpill: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "lom", Name: "pending_spill_objects", Help: "Objects currently PendingSpill.",
		}),
		spilledCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "lom", Name: "spilled_objects", Help: "Objects currently Spilled.",
		}),
		activeWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "lom", Name: "active_workers", Help: "I/O workers currently occupied by a spill or restore.",
		}),
		deleteQueueLen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "lom", Name: "delete_queue_length", Help: "Base-url deletion jobs awaiting a DeleteSpilledObjects RPC.",
		}),
		failedDeletions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "lom", Name: "failed_deletion_requests_total", Help: "DeleteSpilledObjects RPC batches that returned an error.",
		}),
	}
}

// RecordMetrics refreshes the Prometheus gauges from the current table
// state. Call it on a scrape-aligned schedule; it is cheap (a handful of
// map-length reads on the reactor).
func (m *Manager) RecordMetrics() {
	m.call(func() {
		m.stats.pinnedBytes.Set(float64(m.reg.PinnedBytes()))
		m.stats.pinnedCount.Set(float64(m.reg.PinnedCount()))
		m.stats.pendingSpill.Set(float64(m.reg.PendingSpillCount()))
		m.stats.spilledCount.Set(float64(m.reg.SpilledCount()))
		m.stats.activeWorkers.Set(float64(m.numActiveWorkers.Load()))
		m.stats.deleteQueueLen.Set(float64(m.reg.DeleteQueueLen()))
	})
}

// GetPrimaryBytes reports pinned_bytes: the cumulative size of every
// object in Pinned or PendingSpill.
func (m *Manager) GetPrimaryBytes() int64 {
	var v int64
	m.call(func() { v = m.reg.PinnedBytes() })
	return v
}

// HasLocallySpilledObjects reports whether spilled_url is non-empty and
// this node's external storage is the local filesystem: a non-fs backend
// is reachable from any node, so it isn't "local" in the sense this query
// answers.
func (m *Manager) HasLocallySpilledObjects() bool {
	var v bool
	m.call(func() { v = m.cfg.IsExternalStorageFS && m.reg.SpilledCount() > 0 })
	return v
}

// GetLocalSpilledObjectURL returns the recorded URL for a Spilled id, or
// ok=false if this node's external storage isn't the local filesystem.
func (m *Manager) GetLocalSpilledObjectURL(id core.ObjectID) (cos.ObjectURL, bool) {
	var (
		u  cos.ObjectURL
		ok bool
	)
	m.call(func() {
		if !m.cfg.IsExternalStorageFS {
			return
		}
		u, ok = m.reg.SpilledURL(id)
	})
	return u, ok
}

// ObjectStoreStats is the snapshot FillObjectStoreStats populates, for
// callers (raylet debug RPCs, the CLI) that want every counter at once
// under a single consistent reactor round-trip.
type ObjectStoreStats struct {
	PinnedBytes            int64
	PinnedCount            int
	PendingSpillCount      int
	SpilledCount           int
	LocalObjectsCount      int
	PendingRestoreCount    int
	DeleteQueueLength      int
	NumActiveWorkers       int64
	FailedDeletionRequests int64
}

func (m *Manager) FillObjectStoreStats(dst *ObjectStoreStats) {
	m.call(func() {
		dst.PinnedBytes = m.reg.PinnedBytes()
		dst.PinnedCount = m.reg.PinnedCount()
		dst.PendingSpillCount = m.reg.PendingSpillCount()
		dst.SpilledCount = m.reg.SpilledCount()
		dst.LocalObjectsCount = m.reg.LocalObjectsCount()
		dst.PendingRestoreCount = m.reg.PendingRestoreCount()
		dst.DeleteQueueLength = m.reg.DeleteQueueLen()
		dst.NumActiveWorkers = m.numActiveWorkers.Load()
		dst.FailedDeletionRequests = m.numFailedDeletionRequests.Load()
	})
}

// DebugString renders a one-line snapshot in the reference codebase's
// terse key=value reporting style (cf. xact Snap() reporting).
func (m *Manager) DebugString() string {
	var s ObjectStoreStats
	m.FillObjectStoreStats(&s)
	return fmt.Sprintf(
		"lom[pinned=%d(%s) pending-spill=%d spilled=%d local=%d restoring=%d delete-queue=%d active-workers=%d failed-deletes=%d]",
		s.PinnedCount, cos.B2S(s.PinnedBytes, 1), s.PendingSpillCount, s.SpilledCount,
		s.LocalObjectsCount, s.PendingRestoreCount, s.DeleteQueueLength,
		s.NumActiveWorkers, s.FailedDeletionRequests,
	)
}
