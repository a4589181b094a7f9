// Package objdir is the reference, in-memory ObjectDirectory: the
// cluster-wide record of which node holds a spilled copy of an object.
// Deciding how that record propagates across nodes sits outside LOM's
// own decision logic; this package only gives the core something
// concrete to call during tests and single-process demos.
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package objdir

import (
	"context"
	"sync"

	"github.com/ray-project/lom/cmn/cos"
	"github.com/ray-project/lom/core"
)

var _ core.ObjectDirectory = (*Directory)(nil)

type entry struct {
	nodeID string
	url    cos.ObjectURL
}

type Directory struct {
	mu      sync.RWMutex
	entries map[core.ObjectID]entry
}

func New() *Directory {
	return &Directory{entries: make(map[core.ObjectID]entry)}
}

func (d *Directory) ReportObjectSpilled(_ context.Context, id core.ObjectID, nodeID string, u cos.ObjectURL) error {
	d.mu.Lock()
	d.entries[id] = entry{nodeID: nodeID, url: u}
	d.mu.Unlock()
	return nil
}

func (d *Directory) ReportObjectFreed(_ context.Context, id core.ObjectID) error {
	d.mu.Lock()
	delete(d.entries, id)
	d.mu.Unlock()
	return nil
}

// Lookup is a read path the core never calls directly — ObjectDirectory
// stays write-only from LOM's own perspective — but that a host
// process's own remote-object resolution would use.
func (d *Directory) Lookup(id core.ObjectID) (nodeID string, url cos.ObjectURL, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[id]
	return e.nodeID, e.url, ok
}
