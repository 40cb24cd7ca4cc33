// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package memindex implements the memory index tracer (C10): it tracks
// mem-index memory usage against a configured quota.
package memindex

import (
	"sync/atomic"

	"github.com/zeebo/errs"

	"github.com/infiniflow/emberdb/catalog"
	"github.com/infiniflow/emberdb/txn"
)

// Tracer tracks memory-index byte usage against quota. Its bookkeeping is
// a single atomic counter compared against a fixed quota — nothing here
// warrants pulling in a third-party accounting library.
type Tracer struct {
	quota int64
	used  atomic.Int64

	catalog *catalog.Catalog
	txnMgr  *txn.Manager
}

// New constructs the memory index tracer against quota bytes.
func New(quota int64, cat *catalog.Catalog, txnMgr *txn.Manager) *Tracer {
	return &Tracer{quota: quota, catalog: cat, txnMgr: txnMgr}
}

// Reserve accounts for delta bytes of newly-built memory index, failing
// if it would exceed the quota.
func (t *Tracer) Reserve(delta int64) error {
	if t.quota <= 0 {
		t.used.Add(delta)
		return nil
	}
	next := t.used.Add(delta)
	if next > t.quota {
		t.used.Add(-delta)
		return errs.New("memory index quota exceeded: used=%d quota=%d", next, t.quota)
	}
	return nil
}

// Release gives back delta bytes, e.g. after a memory index is dumped to
// a segment.
func (t *Tracer) Release(delta int64) {
	t.used.Add(-delta)
}

// Used returns the current tracked usage in bytes.
func (t *Tracer) Used() int64 {
	return t.used.Load()
}
