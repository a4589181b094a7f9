package core

import (
	"container/list"

	"github.com/ray-project/lom/cmn/cos"
	"github.com/ray-project/lom/cmn/debug"
)

// Residence is the tagged state of an object's three-variant lifecycle:
// Pinned, PendingSpill, or Spilled. The Registry keeps the three backing
// tables separate, closer to the reference raylet's own layout, but
// exposes Residence as a convenience lookup.
type Residence int

const (
	NotRegistered Residence = iota
	Pinned
	PendingSpill
	Spilled
)

func (r Residence) String() string {
	switch r {
	case Pinned:
		return "pinned"
	case PendingSpill:
		return "pending-spill"
	case Spilled:
		return "spilled"
	default:
		return "absent"
	}
}

// DeletionJob is one delete_queue entry. It is anchored on a base-url
// (the fusion key gating physical deletion) rather than a single ObjectID,
// because the objects it originated from are erased from local_objects at
// enqueue time and the job must still be able to name what to delete and
// how many retries remain when it is later popped and, possibly,
// re-enqueued after an RPC failure.
type DeletionJob struct {
	BaseURL      string
	OriginIDs    []ObjectID // observability only: persisted with the job, read by no code path
	RetriesLeft  int64
}

// Registry is the single source of truth for every local-object table.
// It has no internal locking: the reactor goroutine in package lom is the
// only mutator, by construction. Do not share a Registry across
// goroutines without that discipline.
type Registry struct {
	localObjects map[ObjectID]*LocalObjectInfo

	pinned       map[ObjectID]Buffer
	pendingSpill map[ObjectID]Buffer
	spilledURL   map[ObjectID]cos.ObjectURL

	pinnedOrder []ObjectID // insertion order over `pinned`, for planner selection

	urlRefcount map[string]uint64

	pendingRestore  map[ObjectID]struct{}
	pendingDeletion map[ObjectID]struct{}

	deleteQueue *list.List // of *DeletionJob

	pinnedBytes int64
}

func NewRegistry() *Registry {
	return &Registry{
		localObjects:    make(map[ObjectID]*LocalObjectInfo),
		pinned:          make(map[ObjectID]Buffer),
		pendingSpill:    make(map[ObjectID]Buffer),
		spilledURL:      make(map[ObjectID]cos.ObjectURL),
		urlRefcount:     make(map[string]uint64),
		pendingRestore:  make(map[ObjectID]struct{}),
		pendingDeletion: make(map[ObjectID]struct{}),
		deleteQueue:     list.New(),
	}
}

// --- Pin & residence queries -------------------------------------------------

// Residence reports which of the three tables id currently occupies, or
// NotRegistered if id is unknown.
func (r *Registry) Residence(id ObjectID) Residence {
	if _, ok := r.pinned[id]; ok {
		return Pinned
	}
	if _, ok := r.pendingSpill[id]; ok {
		return PendingSpill
	}
	if _, ok := r.spilledURL[id]; ok {
		return Spilled
	}
	return NotRegistered
}

func (r *Registry) Info(id ObjectID) (*LocalObjectInfo, bool) {
	info, ok := r.localObjects[id]
	return info, ok
}

// PinnedBuffer looks up id's buffer without mutating any table, for the
// planner to stage a candidate before committing it to pending_spill.
func (r *Registry) PinnedBuffer(id ObjectID) (Buffer, bool) {
	buf, ok := r.pinned[id]
	return buf, ok
}

// Pin installs id into local_objects/pinned (Pinned state). A duplicate
// pin of an already-registered id is idempotent and drops buf.
func (r *Registry) Pin(id ObjectID, buf Buffer, owner OwnerAddress, generatorID ObjectID, size int64) (installed bool) {
	if _, ok := r.localObjects[id]; ok {
		buf.Release()
		return false
	}
	r.localObjects[id] = &LocalObjectInfo{Owner: owner, GeneratorID: generatorID, ObjectSize: size}
	r.pinned[id] = buf
	r.pinnedOrder = append(r.pinnedOrder, id)
	r.pinnedBytes += size
	return true
}

// PinnedOrder returns the ids currently in `pinned`, insertion order, for
// the planner's candidate scan: selection always starts from the
// oldest-pinned object.
func (r *Registry) PinnedOrder() []ObjectID {
	out := make([]ObjectID, 0, len(r.pinned))
	seen := make(map[ObjectID]struct{}, len(r.pinned))
	for _, id := range r.pinnedOrder {
		if _, ok := r.pinned[id]; !ok {
			continue
		}
		// MoveToPinned re-appends an id; keep only its first position.
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	// compact the backing slice whenever it holds ids no longer pinned or
	// repeated ones
	if len(out) != len(r.pinnedOrder) {
		r.pinnedOrder = append([]ObjectID(nil), out...)
	}
	return out
}

// --- Spill lifecycle ---------------------------------------------------------

// MoveToPendingSpill migrates id from pinned to pending_spill. Must only be
// called for ids currently Pinned (the planner enforces this).
func (r *Registry) MoveToPendingSpill(id ObjectID) {
	buf, ok := r.pinned[id]
	debug.Assert(ok, "move to pending-spill: id not in pinned", id)
	delete(r.pinned, id)
	r.pendingSpill[id] = buf
}

// MoveToPinned reverses MoveToPendingSpill, used when a spill RPC fails:
// the ids return to Pinned so a later planning round can retry them.
func (r *Registry) MoveToPinned(id ObjectID) {
	buf := r.pendingSpill[id]
	delete(r.pendingSpill, id)
	r.pinned[id] = buf
	r.pinnedOrder = append(r.pinnedOrder, id)
}

// CompleteSpill migrates id from pending_spill to spilled_url, recording
// the URL, bumping its base-url's refcount and removing its size from
// pinned_bytes. Returns the released buffer so the caller can hand it
// back to the plasma store driver.
func (r *Registry) CompleteSpill(id ObjectID, u cos.ObjectURL) Buffer {
	buf, ok := r.pendingSpill[id]
	debug.Assert(ok, "complete spill: id not in pending-spill", id)
	delete(r.pendingSpill, id)
	if info, ok := r.localObjects[id]; ok {
		r.pinnedBytes -= info.ObjectSize
	}
	r.spilledURL[id] = u
	r.urlRefcount[u.BaseURL]++
	return buf
}

// MarkFreedDuringSpill sets IsFreed on an id still PendingSpill.
func (r *Registry) MarkFreedDuringSpill(id ObjectID) {
	if info, ok := r.localObjects[id]; ok {
		info.IsFreed = true
	}
}

// IsFreed reports the current IsFreed flag.
func (r *Registry) IsFreed(id ObjectID) bool {
	info, ok := r.localObjects[id]
	return ok && info.IsFreed
}

// SpilledURL returns the recorded URL for a Spilled id.
func (r *Registry) SpilledURL(id ObjectID) (cos.ObjectURL, bool) {
	u, ok := r.spilledURL[id]
	return u, ok
}

// --- Eviction / removal ------------------------------------------------------

// RemovePinned erases id from pinned/local_objects and returns its buffer
// and declared size (for pinned_bytes bookkeeping), used by
// ReleaseFreedObject when the freed object is still Pinned.
func (r *Registry) RemovePinned(id ObjectID) (buf Buffer, size int64, ok bool) {
	buf, ok = r.pinned[id]
	if !ok {
		return nil, 0, false
	}
	info := r.localObjects[id]
	size = info.ObjectSize
	delete(r.pinned, id)
	delete(r.localObjects, id)
	r.pinnedBytes -= size
	return buf, size, true
}

// RemoveSpilled erases id from spilled_url/local_objects, decrements the
// base-url refcount, and reports whether the refcount hit zero (in which
// case the caller must enqueue the base-url for deletion).
func (r *Registry) RemoveSpilled(id ObjectID) (u cos.ObjectURL, refZero bool, ok bool) {
	u, ok = r.spilledURL[id]
	if !ok {
		return cos.ObjectURL{}, false, false
	}
	delete(r.spilledURL, id)
	delete(r.localObjects, id)
	cnt := r.urlRefcount[u.BaseURL]
	debug.Assert(cnt >= 1, "remove spilled: refcount already zero for", u.BaseURL)
	if cnt <= 1 {
		delete(r.urlRefcount, u.BaseURL)
		refZero = true
	} else {
		r.urlRefcount[u.BaseURL] = cnt - 1
	}
	return u, refZero, true
}

func (r *Registry) RefCount(baseURL string) uint64 { return r.urlRefcount[baseURL] }

// --- pending_deletion / pending_restore sets ---------------------------------

func (r *Registry) MarkPendingDeletion(id ObjectID) { r.pendingDeletion[id] = struct{}{} }

func (r *Registry) ObjectPendingDeletion(id ObjectID) bool {
	_, ok := r.pendingDeletion[id]
	return ok
}

// ClearPendingDeletion is exposed for the plasma-delete-notification path
// to absorb a single outstanding marker once observed.
func (r *Registry) ClearPendingDeletion(id ObjectID) { delete(r.pendingDeletion, id) }

func (r *Registry) BeginRestore(id ObjectID) (already bool) {
	if _, ok := r.pendingRestore[id]; ok {
		return true
	}
	r.pendingRestore[id] = struct{}{}
	return false
}

func (r *Registry) EndRestore(id ObjectID) { delete(r.pendingRestore, id) }

func (r *Registry) IsRestoring(id ObjectID) bool {
	_, ok := r.pendingRestore[id]
	return ok
}

// --- delete_queue -------------------------------------------------------------

func (r *Registry) EnqueueDeletion(job *DeletionJob) { r.deleteQueue.PushBack(job) }

// PopDeletions removes up to max entries from the front of delete_queue.
func (r *Registry) PopDeletions(max int) []*DeletionJob {
	out := make([]*DeletionJob, 0, max)
	for len(out) < max {
		front := r.deleteQueue.Front()
		if front == nil {
			break
		}
		r.deleteQueue.Remove(front)
		out = append(out, front.Value.(*DeletionJob))
	}
	return out
}

func (r *Registry) DeleteQueueLen() int { return r.deleteQueue.Len() }

// SnapshotDeleteQueue returns every pending job without removing it, for
// the optional DeleteQueueStore to persist (SPEC_FULL.md §11).
func (r *Registry) SnapshotDeleteQueue() []*DeletionJob {
	out := make([]*DeletionJob, 0, r.deleteQueue.Len())
	for e := r.deleteQueue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*DeletionJob))
	}
	return out
}

// --- aggregate stats used by Stats/Introspection -----------------------------

func (r *Registry) PinnedBytes() int64 { return r.pinnedBytes }
func (r *Registry) PinnedCount() int   { return len(r.pinned) }
func (r *Registry) PendingSpillCount() int { return len(r.pendingSpill) }
func (r *Registry) SpilledCount() int  { return len(r.spilledURL) }
func (r *Registry) LocalObjectsCount() int { return len(r.localObjects) }
func (r *Registry) PendingRestoreCount() int { return len(r.pendingRestore) }
