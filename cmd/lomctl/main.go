// lomctl is a small demo/ops CLI around package lom: it wires a Manager
// to the in-process reference collaborators (ioworkers.Pool over a
// filesystem backend, pubsub.Bus, objdir.Directory, ownerclient.Pool)
// and drives Pin/spill/restore/stats against them, so the control-plane
// state machine can be exercised end-to-end without a host process.
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ray-project/lom/cmn"
	"github.com/ray-project/lom/cmn/nlog"
	"github.com/ray-project/lom/core"
	"github.com/ray-project/lom/dqstore"
	"github.com/ray-project/lom/ioworkers"
	"github.com/ray-project/lom/lom"
	"github.com/ray-project/lom/objdir"
	"github.com/ray-project/lom/ownerclient"
	"github.com/ray-project/lom/pubsub"
)

var (
	fsRoot     string
	dqStoreDir string
	configPath string
)

func main() {
	root := &cobra.Command{
		Use:   "lomctl",
		Short: "Drive the Local Object Manager demo control plane",
	}
	root.PersistentFlags().StringVar(&fsRoot, "spill-dir", "./lomctl-spill", "directory the filesystem backend spills into")
	root.PersistentFlags().StringVar(&dqStoreDir, "dqstore", "", "optional buntdb path for persisting the delete queue")
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional JSON config file")

	root.AddCommand(newDemoCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newDemoCmd runs a scripted end-to-end scenario: pin a handful of
// synthetic objects, force a spill, restore one back, evict the rest, and
// print stats after each step. It exists to give every wired dependency
// (fasthttp owner client, buntdb persistence, cuckoofilter dedup,
// prometheus gauges) a concrete code path to run, not just a compile-time
// import.
func newDemoCmd() *cobra.Command {
	var objectCount int
	var objectSize int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted pin/spill/restore/evict scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(objectCount, objectSize)
		},
	}
	cmd.Flags().IntVar(&objectCount, "objects", 8, "number of synthetic objects to pin")
	cmd.Flags().IntVar(&objectSize, "object-size", 4<<20, "size in bytes of each synthetic object")
	return cmd
}

func runDemo(objectCount, objectSize int) error {
	cfg, err := cmn.LoadConfig(configPath)
	if err != nil {
		return err
	}
	// Keep the demo observable at a small object count instead of
	// waiting for the default 100MiB spill threshold.
	cfg.MinSpillingSize = int64(objectSize)

	if err := os.MkdirAll(fsRoot, 0o755); err != nil {
		return err
	}
	backend := ioworkers.NewFSBackend(fsRoot)
	ioPool := ioworkers.NewPool(backend, cfg.MaxActiveWorkers)

	bus := pubsub.NewBus()
	dir := objdir.New()
	owners := ownerclient.NewPool()

	var dqStore core.DeleteQueueStore
	if dqStoreDir != "" {
		store, err := dqstore.Open(dqStoreDir)
		if err != nil {
			return err
		}
		defer store.Close()
		dqStore = store
	}

	mgr := lom.NewManager(cfg, lom.Deps{
		SelfNodeID:      "lomctl-demo-node",
		IOWorkers:       ioPool,
		Owners:          owners,
		Subscriber:      bus,
		ObjectDirectory: dir,
		OnObjectsFreed: func(ids []core.ObjectID) {
			nlog.Infof("lomctl: %d objects confirmed freed from local storage", len(ids))
		},
		DQStore: dqStore,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)
	defer mgr.Stop()

	owner := core.OwnerAddress{WorkerID: "demo-worker", NodeIP: "127.0.0.1", Port: 9999}

	ids := make([]core.ObjectID, objectCount)
	for i := range ids {
		data := make([]byte, objectSize)
		if _, err := rand.Read(data); err != nil {
			return err
		}
		id := randomObjectID()
		ids[i] = id
		mgr.Pin(id, core.NewMemBuffer(data), owner, core.NilObjectID)
	}
	fmt.Println("after pin:      ", mgr.DebugString())

	if !mgr.TryToSpillObjects(true) {
		fmt.Println("lomctl: spill did not dispatch, nothing eligible")
	}
	waitUntilQuiet(mgr)
	fmt.Println("after spill:    ", mgr.DebugString())

	if u, ok := mgr.GetLocalSpilledObjectURL(ids[0]); ok {
		done := make(chan error, 1)
		mgr.AsyncRestoreSpilledObject(ids[0], func(err error) { done <- err })
		if err := <-done; err != nil {
			fmt.Println("restore failed:", err)
		} else {
			fmt.Printf("restored %s from %s\n", ids[0], u.BaseURL)
		}
	}
	fmt.Println("after restore:  ", mgr.DebugString())

	for _, id := range ids[1:] {
		bus.Publish(id)
	}
	mgr.FlushFreeObjects()
	time.Sleep(50 * time.Millisecond)
	mgr.ProcessSpilledObjectsDeleteQueue(len(ids))
	time.Sleep(50 * time.Millisecond)
	fmt.Println("after evict:    ", mgr.DebugString())

	mgr.RecordMetrics()
	return nil
}

func waitUntilQuiet(mgr *lom.Manager) {
	for i := 0; i < 100 && mgr.IsSpillingInProgress(); i++ {
		time.Sleep(10 * time.Millisecond)
	}
}

func randomObjectID() core.ObjectID {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return core.ObjectIDFromBytes(b[:])
}
