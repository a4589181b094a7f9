package cmn

import "github.com/pkg/errors"

// Sentinel error kinds returned by the control plane. Callers should
// compare with errors.Is (or errors.Cause for the wrapped variants the
// spill executor and deletion queue construct around these).
var (
	// ErrSpillWorkerFailure: an I/O worker RPC failed or returned non-OK
	// while spilling. The ids return to Pinned. TryToSpillObjects takes
	// no callback, so no caller receives this (wrapped) error; it only
	// appears in the spill-failure warning, which VerboseSpillLogBytes
	// rate-limits and which is off when that is zero.
	ErrSpillWorkerFailure = errors.New("spill worker failure")

	// ErrRestoreWorkerFailure: the restore RPC failed. The id is removed
	// from pending_restore; the caller is expected to retry.
	ErrRestoreWorkerFailure = errors.New("restore worker failure")

	// ErrDeleteFailure: a DeleteSpilledObjects RPC failed. The batch is
	// re-enqueued with a decremented retry counter.
	ErrDeleteFailure = errors.New("delete spilled objects failure")

	// ErrOwnerUnreachable: an owner RPC failed or its pub/sub
	// subscription reported disconnect. Treated identically to an
	// explicit eviction notification for every object pinned for that
	// owner.
	ErrOwnerUnreachable = errors.New("owner unreachable")

	// ErrDuplicateRestore: AsyncRestoreSpilledObject was called for an id
	// already in pending_restore. The caller must retry later; this is
	// returned only to distinguish the case in logs/tests.
	ErrDuplicateRestore = errors.New("restore already in flight")

	// ErrNotSpillable: is_plasma_object_spillable returned false for this
	// id in this planning round.
	ErrNotSpillable = errors.New("object not spillable this round")

	// ErrObjectNotSpilled: AsyncRestoreSpilledObject was called for an id
	// with no spilled_url entry (never spilled, already restored, or
	// already freed).
	ErrObjectNotSpilled = errors.New("object has no spilled url")
)
