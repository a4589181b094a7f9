package core

// Buffer is the local shared-memory handle LOM holds on behalf of the
// plasma store for a Pinned or PendingSpill object. The plasma store
// itself lives outside this package; LOM only needs to know a buffer's
// size and how to release it back when the object leaves local residence.
type Buffer interface {
	Size() int64
	Release()
}

// LocalObjectInfo is the per-object record LOM keeps while an object is
// resident locally.
type LocalObjectInfo struct {
	Owner OwnerAddress

	// GeneratorID is set iff this object was dynamically produced inside
	// a parent object's execution; the parent owner must be notified so
	// it can adopt this id into its ref count.
	GeneratorID ObjectID

	ObjectSize int64

	// IsFreed is set when the owner has confirmed out-of-scope while the
	// object was PendingSpill; physical release/URL handoff is deferred
	// until the in-flight spill completes.
	IsFreed bool
}

func (i *LocalObjectInfo) HasGenerator() bool { return !i.GeneratorID.IsNil() }
