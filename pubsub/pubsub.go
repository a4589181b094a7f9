// Package pubsub is the reference Subscriber: an in-process
// publish/subscribe registry for the "object-evicted" channel and
// owner-disconnect detection. A real deployment would back this with the
// cluster's own gossip/heartbeat channel; this implementation is the
// default a single-process host (such as cmd/lomctl) wires in. The lom
// package's own tests use a fake Subscriber of their own instead.
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package pubsub

import (
	"sync"

	"github.com/ray-project/lom/core"
)

var _ core.Subscriber = (*Bus)(nil)

type subscription struct {
	owner     core.OwnerAddress
	onMessage func()
	onFailure func(error)
}

// Bus is a process-local Subscriber that keeps one subscription per id (a
// later Subscribe for the same id replaces the earlier one). Publish/Fail
// deliver synchronously to the subscriptions they match, then drop them —
// an eviction notification is a one-shot event per pin.
type Bus struct {
	mu   sync.Mutex
	subs map[core.ObjectID]*subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[core.ObjectID]*subscription)}
}

func (b *Bus) Subscribe(owner core.OwnerAddress, id core.ObjectID, onMessage func(), onFailure func(error)) core.SubscriptionHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = &subscription{owner: owner, onMessage: onMessage, onFailure: onFailure}
	return &handle{bus: b, id: id}
}

// Publish delivers an eviction notification for id, if still subscribed.
func (b *Bus) Publish(id core.ObjectID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok && sub.onMessage != nil {
		sub.onMessage()
	}
}

// Fail reports the owner at OwnerAddress as unreachable to every
// subscription registered against it, treated identically to an
// explicit eviction notification.
func (b *Bus) Fail(owner core.OwnerAddress, err error) {
	b.mu.Lock()
	var matched []*subscription
	for id, sub := range b.subs {
		if sub.owner == owner {
			matched = append(matched, sub)
			delete(b.subs, id)
		}
	}
	b.mu.Unlock()
	for _, sub := range matched {
		if sub.onFailure != nil {
			sub.onFailure(err)
		}
	}
}

func (b *Bus) unsubscribe(id core.ObjectID) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

type handle struct {
	bus *Bus
	id  core.ObjectID
}

func (h *handle) Unsubscribe() { h.bus.unsubscribe(h.id) }
