// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package storagectl implements the storage lifecycle controller (C0):
// the mode-transition state machine that constructs, wires, starts, and
// tears down every other subsystem in the engine. See spec.md §4.1 and
// original_source's src/storage/storage.cpp, which this package's
// transition logic is ground-truthed against.
package storagectl

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/bgtask"
	"github.com/infiniflow/emberdb/buffer"
	"github.com/infiniflow/emberdb/catalog"
	"github.com/infiniflow/emberdb/compaction"
	"github.com/infiniflow/emberdb/config"
	"github.com/infiniflow/emberdb/memindex"
	"github.com/infiniflow/emberdb/objectstore"
	"github.com/infiniflow/emberdb/persistence"
	"github.com/infiniflow/emberdb/resultcache"
	"github.com/infiniflow/emberdb/trigger"
	"github.com/infiniflow/emberdb/txn"
	"github.com/infiniflow/emberdb/types"
	"github.com/infiniflow/emberdb/walmgr"
)

var mon = monkit.Package()

// CleanupInfoTracer is a lightweight marker recreated at the start of
// every mode transition (every SetMode call whose target differs from the
// current mode, whether or not the transition then succeeds); it exists so downstream cleanup scanning (out of
// scope for this package) has a fixed point in time to measure garbage
// accumulation against.
type CleanupInfoTracer struct {
	CreatedAt time.Time
}

func newCleanupInfoTracer() *CleanupInfoTracer {
	return &CleanupInfoTracer{CreatedAt: time.Now()}
}

// Controller is the storage lifecycle controller (C0). It is the unique
// owner of every handle below; none of them holds a strong reference back
// to the Controller or to each other — only non-owning references whose
// validity is guaranteed by the teardown ordering the Controller enforces
// (spec.md §3 Ownership, §5 Shared-resource policy).
type Controller struct {
	log *zap.Logger
	cfg *config.Config

	// mu serializes SetMode calls end to end and guards readerPhase.
	// currentMode is additionally mirrored into an atomic so that a
	// back-reference held by a collaborator (e.g. walmgr.ControllerRef)
	// can read it without re-entering this mutex from inside a
	// transition that already holds it.
	mu          sync.Mutex
	currentMode atomic.Int32
	readerPhase types.ReaderInitPhase

	wal            *walmgr.Manager
	cat            *catalog.Catalog
	txnMgr         *txn.Manager
	bufMgr         *buffer.Manager
	persist        *persistence.Manager
	objStoreProc   *objectstore.Processor
	bgProc         *bgtask.Processor
	compactProc    *compaction.Processor
	memIdxTracer   *memindex.Tracer
	periodicThread *trigger.Thread
	resultCache    *resultcache.Manager
	cleanupTracer  *CleanupInfoTracer
}

// New constructs a Controller in UnInitialized mode. No collaborator is
// constructed until the first call to SetMode.
func New(log *zap.Logger, cfg *config.Config) *Controller {
	c := &Controller{log: log, cfg: cfg}
	c.currentMode.Store(int32(types.UnInitialized))
	return c
}

// Mode implements walmgr.ControllerRef: a lock-free snapshot of the
// current mode, safe to call from inside a collaborator even while a
// transition holds mu.
func (c *Controller) Mode() types.StorageMode {
	return types.StorageMode(c.currentMode.Load())
}

// GetMode returns the current storage mode.
func (c *Controller) GetMode() types.StorageMode {
	return c.Mode()
}

func (c *Controller) setModeUnlocked(m types.StorageMode) {
	c.currentMode.Store(int32(m))
}

// ResultCacheManager returns the result cache handle only if the "result
// cache" config option is enabled; otherwise it returns false.
func (c *Controller) ResultCacheManager() (*resultcache.Manager, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.ResultCache || c.resultCache == nil {
		return nil, false
	}
	return c.resultCache, true
}

// fatal logs and panics with an identifying message naming the offending
// mode and handle, per spec.md §7: a lifecycle invariant violation
// signals programmer error in the controller or its caller and must not
// be silently swallowed.
func (c *Controller) fatal(mode types.StorageMode, handle, reason string) {
	msg := fmt.Sprintf("storagectl: fatal lifecycle violation: mode=%s handle=%s: %s", mode, handle, reason)
	c.log.Error("fatal lifecycle violation", zap.Stringer("mode", mode), zap.String("handle", handle), zap.String("reason", reason))
	panic(msg)
}
