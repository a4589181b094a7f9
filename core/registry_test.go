package core

import (
	"testing"

	"github.com/ray-project/lom/cmn/cos"
)

type fakeBuf struct {
	size     int64
	released bool
}

func (b *fakeBuf) Size() int64 { return b.size }
func (b *fakeBuf) Release()    { b.released = true }

func mkID(b byte) ObjectID {
	var id ObjectID
	id[0] = b
	return id
}

func TestPinIdempotent(t *testing.T) {
	r := NewRegistry()
	id := mkID(1)
	owner := OwnerAddress{WorkerID: "w1"}

	if !r.Pin(id, &fakeBuf{size: 100}, owner, NilObjectID, 100) {
		t.Fatal("expected first pin to install")
	}
	dup := &fakeBuf{size: 100}
	if r.Pin(id, dup, owner, NilObjectID, 100) {
		t.Fatal("expected duplicate pin to be a no-op")
	}
	if !dup.released {
		t.Fatal("duplicate pin's buffer must be released, not retained")
	}
	if r.PinnedBytes() != 100 {
		t.Fatalf("pinned bytes = %d, want 100", r.PinnedBytes())
	}
}

func TestSpillLifecycleUpdatesInvariants(t *testing.T) {
	r := NewRegistry()
	idA, idB := mkID(1), mkID(2)
	owner := OwnerAddress{WorkerID: "w1"}
	r.Pin(idA, &fakeBuf{size: 500}, owner, NilObjectID, 500)
	r.Pin(idB, &fakeBuf{size: 500}, owner, NilObjectID, 500)

	// pinned_bytes counts pinned+pending_spill.
	r.MoveToPendingSpill(idA)
	if r.PinnedBytes() != 1000 {
		t.Fatalf("pinned bytes after pending-spill move = %d, want 1000", r.PinnedBytes())
	}
	if r.Residence(idA) != PendingSpill {
		t.Fatalf("idA residence = %v, want PendingSpill", r.Residence(idA))
	}

	u := cos.ObjectURL{BaseURL: "s3://bucket/f1", Offset: 0, Size: 500}
	r.CompleteSpill(idA, u)
	if r.Residence(idA) != Spilled {
		t.Fatalf("idA residence after spill = %v, want Spilled", r.Residence(idA))
	}
	if r.RefCount(u.BaseURL) != 1 {
		t.Fatalf("refcount = %d, want 1", r.RefCount(u.BaseURL))
	}
	// local_objects keys are still the disjoint union.
	if r.LocalObjectsCount() != 2 {
		t.Fatalf("local objects = %d, want 2", r.LocalObjectsCount())
	}
}

func TestFusedRefcountGatesDeletion(t *testing.T) {
	r := NewRegistry()
	idA, idB := mkID(1), mkID(2)
	owner := OwnerAddress{WorkerID: "w1"}
	r.Pin(idA, &fakeBuf{size: 500}, owner, NilObjectID, 500)
	r.Pin(idB, &fakeBuf{size: 500}, owner, NilObjectID, 500)
	r.MoveToPendingSpill(idA)
	r.MoveToPendingSpill(idB)

	base := "s3://bucket/fused"
	r.CompleteSpill(idA, cos.ObjectURL{BaseURL: base, Offset: 0, Size: 500})
	r.CompleteSpill(idB, cos.ObjectURL{BaseURL: base, Offset: 500, Size: 500})
	if r.RefCount(base) != 2 {
		t.Fatalf("refcount = %d, want 2", r.RefCount(base))
	}

	_, refZero, ok := r.RemoveSpilled(idA)
	if !ok || refZero {
		t.Fatal("first release of a fused pair must not zero the refcount")
	}
	if r.RefCount(base) != 1 {
		t.Fatalf("refcount after first release = %d, want 1", r.RefCount(base))
	}

	_, refZero, ok = r.RemoveSpilled(idB)
	if !ok || !refZero {
		t.Fatal("second release of a fused pair must zero the refcount")
	}
	if _, present := r.urlRefcount[base]; present {
		t.Fatal("zeroed refcount entries must be removed")
	}
}

func TestDeleteQueueFIFO(t *testing.T) {
	r := NewRegistry()
	r.EnqueueDeletion(&DeletionJob{BaseURL: "a", RetriesLeft: 3})
	r.EnqueueDeletion(&DeletionJob{BaseURL: "b", RetriesLeft: 3})
	r.EnqueueDeletion(&DeletionJob{BaseURL: "c", RetriesLeft: 3})

	batch := r.PopDeletions(2)
	if len(batch) != 2 || batch[0].BaseURL != "a" || batch[1].BaseURL != "b" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if r.DeleteQueueLen() != 1 {
		t.Fatalf("queue len = %d, want 1", r.DeleteQueueLen())
	}
}
