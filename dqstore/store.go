// Package dqstore is the optional, crash-safe backing store for
// delete_queue: the control plane itself is otherwise stateless, but a
// real deployment should not leak spilled files awaiting deletion across
// a process restart. It persists core.DeletionJob entries to an
// embedded github.com/tidwall/buntdb database, keyed by base-url.
/*
 * Copyright (c) 2024-2025, Ray Project contributors.
 */
package dqstore

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/ray-project/lom/core"
)

var _ core.DeleteQueueStore = (*Store)(nil)

const keyPrefix = "dq:"

type Store struct {
	db *buntdb.DB
}

// Open opens (creating if necessary) a buntdb file at path. Pass ":memory:"
// for a non-persistent store useful in tests.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open delete-queue store")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Persist overwrites the entire stored queue with jobs. Called after
// every delete_queue mutation; the table is small enough that a full
// rewrite per mutation is simpler and cheap compared to incremental
// diffing.
func (s *Store) Persist(jobs []*core.DeletionJob) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		if err := tx.DeleteAll(); err != nil && err != buntdb.ErrNotFound {
			return errors.Wrap(err, "clear delete-queue store")
		}
		for _, j := range jobs {
			b, err := jsoniter.Marshal(j)
			if err != nil {
				return errors.Wrapf(err, "marshal delete-queue job %s", j.BaseURL)
			}
			if _, _, err := tx.Set(keyPrefix+j.BaseURL, string(b), nil); err != nil {
				return errors.Wrapf(err, "persist delete-queue job %s", j.BaseURL)
			}
		}
		return nil
	})
}

// Load reconstructs delete_queue from the store, e.g. on process startup.
// Order across base-urls is not preserved (buntdb iterates lexically by
// key); FIFO ordering among jobs that survived a crash is a best effort,
// not a guarantee.
func (s *Store) Load() ([]*core.DeletionJob, error) {
	var jobs []*core.DeletionJob
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(keyPrefix+"*", func(key, value string) bool {
			var j core.DeletionJob
			if err := jsoniter.Unmarshal([]byte(value), &j); err != nil {
				return true // skip a corrupt entry rather than fail startup entirely
			}
			jobs = append(jobs, &j)
			return true
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "load delete-queue store")
	}
	return jobs, nil
}
