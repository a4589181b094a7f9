package core

import (
	"context"

	"github.com/ray-project/lom/cmn/cos"
)

// The types below are the collaborator interfaces: everything LOM
// depends on but does not implement. Concrete, pluggable implementations
// live in ioworkers/, ownerclient/, pubsub/, and objdir/; the reactor in
// package lom only ever sees these interfaces, so it stays
// backend-agnostic.

// SpillReply is what an I/O worker returns for a completed SpillObjects
// call: one URL per input id, in input order. Multiple entries may share a
// base-url, indicating fusion.
type SpillReply struct {
	URLs []cos.ObjectURL
}

// IOWorkerPool is the worker-process pool that performs the actual bytes
// movement. Spawn/crash policy is the pool's own concern, not LOM's.
type IOWorkerPool interface {
	SpillObjects(ctx context.Context, ids []ObjectID, bufs []Buffer) (SpillReply, error)
	RestoreSpilledObject(ctx context.Context, id ObjectID, url cos.ObjectURL) error
	DeleteSpilledObjects(ctx context.Context, baseURLs []string) error
}

// OwnerClient is the lazily-opened per-owner RPC client.
type OwnerClient interface {
	WaitForRefRemoved(ctx context.Context, id, generatorID ObjectID) error
	AddSpilledURL(ctx context.Context, id ObjectID, url cos.ObjectURL, selfNodeID string) error
}

// OwnerClientPool opens (and caches) an OwnerClient per owner address.
type OwnerClientPool interface {
	Get(owner OwnerAddress) (OwnerClient, error)
}

// SubscriptionHandle lets the pin/subscription manager tear a subscription
// down again, e.g. once WaitForRefRemoved already resolved it.
type SubscriptionHandle interface {
	Unsubscribe()
}

// Subscriber is the pub/sub collaborator used for the "object-evicted"
// channel.
type Subscriber interface {
	Subscribe(owner OwnerAddress, id ObjectID, onMessage func(), onFailure func(error)) SubscriptionHandle
}

// ObjectDirectory reports spilled/freed objects to the cluster-wide
// object directory, which sits outside LOM's own decision logic.
type ObjectDirectory interface {
	ReportObjectSpilled(ctx context.Context, id ObjectID, nodeID string, url cos.ObjectURL) error
	ReportObjectFreed(ctx context.Context, id ObjectID) error
}

// SpillablePredicate reports whether an object may be spilled right now
// (e.g. not currently referenced by a running local worker).
type SpillablePredicate func(id ObjectID) bool

// FreedObjectsCallback is invoked by the Free Flusher with a batch of ids
// the surrounding raylet should broadcast as freed from remote stores.
type FreedObjectsCallback func(ids []ObjectID)

// DeleteQueueStore persists delete_queue across process restarts. The
// control plane keeps no persisted state of its own; this is an optional
// host-side extension that makes the deletion queue crash-safe.
type DeleteQueueStore interface {
	Persist(jobs []*DeletionJob) error
	Load() ([]*DeletionJob, error)
}
