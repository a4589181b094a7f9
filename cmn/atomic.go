package cmn

import "sync/atomic"

// Int64/Bool are the narrow typed atomics the plasma-store thread may
// touch directly without going through the reactor (IsSpillingInProgress,
// the failed-deletion counter). Everything else lives in core.Registry and
// is mutated only by the single reactor goroutine.

type Int64 struct{ v int64 }

func (i *Int64) Load() int64        { return atomic.LoadInt64(&i.v) }
func (i *Int64) Store(n int64)      { atomic.StoreInt64(&i.v, n) }
func (i *Int64) Add(delta int64) int64 { return atomic.AddInt64(&i.v, delta) }
func (i *Int64) Inc() int64         { return i.Add(1) }
func (i *Int64) Dec() int64         { return i.Add(-1) }

type Bool struct{ v int32 }

func (b *Bool) Load() bool { return atomic.LoadInt32(&b.v) != 0 }
func (b *Bool) Store(v bool) {
	n := int32(0)
	if v {
		n = 1
	}
	atomic.StoreInt32(&b.v, n)
}
