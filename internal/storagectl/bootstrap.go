// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package storagectl

import (
	"context"

	"github.com/zeebo/errs"

	"github.com/infiniflow/emberdb/bgtask"
	"github.com/infiniflow/emberdb/catalog"
	"github.com/infiniflow/emberdb/config"
	"github.com/infiniflow/emberdb/memindex"
	"github.com/infiniflow/emberdb/trigger"
	"github.com/infiniflow/emberdb/txn"
	"github.com/infiniflow/emberdb/types"
)

// ContinueReaderBootstrap finishes bring-up for a controller left at
// Phase1 by a Readable transition (spec.md §4.1.4 / §6.2): it constructs
// the remaining collaborators that the original bring-up deferred
// because Readable mode waits on external log replication to learn
// systemStartTS first. Calling this outside Readable/Phase1 is a fatal
// lifecycle violation.
func (c *Controller) ContinueReaderBootstrap(ctx context.Context, systemStartTS types.TxnTimeStamp) (err error) {
	defer mon.Task()(&ctx)(&err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Mode() != types.Readable {
		c.fatal(c.Mode(), "reader_phase", "continue reader bootstrap is only valid in Readable mode")
	}
	if c.readerPhase != types.Phase1 {
		c.fatal(types.Readable, "reader_phase", "continue reader bootstrap requires Phase1")
	}

	if c.cat == nil {
		c.cat = catalog.NewCatalog(c.log.Named("catalog"))
	}
	c.cat.RegisterBuiltins()

	if c.bgProc != nil {
		c.fatal(types.Readable, "bg_proc", "background processor was initialized before")
	}
	c.bgProc = bgtask.New(c.log.Named("bgtask"), c.wal, c.cat)

	if c.txnMgr != nil {
		c.fatal(types.Readable, "txn_mgr", "transaction manager was initialized before")
	}
	c.txnMgr = txn.New(c.log.Named("txn"), c.bufMgr, c.wal, systemStartTS)
	if err := c.txnMgr.Start(); err != nil {
		return err
	}

	if err := c.wal.Start(); err != nil {
		return err
	}

	if c.memIdxTracer != nil {
		c.fatal(types.Readable, "mem_idx_tracer", "memory index tracer was initialized before")
	}
	c.memIdxTracer = memindex.New(c.cfg.MemIndexMemoryQuota, c.cat, c.txnMgr)

	c.cat.StartMemoryIndexCommit()
	if err := c.cat.MemIndexRecover(c.bufMgr, systemStartTS); err != nil {
		return err
	}

	if err := c.bgProc.Start(); err != nil {
		return err
	}

	if c.periodicThread != nil {
		c.fatal(types.Readable, "periodic_thread", "periodic trigger was initialized before")
	}
	th := trigger.New(c.log.Named("trigger"))
	th.Cleanup = trigger.NewCleanupTrigger(c.log.Named("cleanup"), config.ClampInterval(c.cfg.CleanupInterval), c.cat, c.txnMgr)
	c.periodicThread = th
	c.bgProc.SetCleanupTrigger(th.Cleanup)
	th.CleanupRunner = c.bgProc.RunCleanup
	if err := c.periodicThread.Start(); err != nil {
		return err
	}

	c.readerPhase = types.Phase2
	c.log.Info("reader bootstrap complete")
	return nil
}

// AttachCatalog constructs the catalog from a full checkpoint plus a list
// of delta checkpoints, read back through the buffer manager. The buffer
// manager must already be initialized (bring-up's step 5 or an earlier
// call into this controller).
func (c *Controller) AttachCatalog(fullPath string, deltaPaths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cat != nil {
		c.fatal(c.Mode(), "catalog", "catalog was attached before")
	}
	if c.bufMgr == nil {
		c.fatal(c.Mode(), "buffer", "buffer manager must be initialized before attaching a catalog")
	}

	cat, err := catalog.LoadFromFiles(c.log.Named("catalog"), fullPath, deltaPaths, c.bufMgr)
	if err != nil {
		return err
	}
	c.cat = cat
	return nil
}

// LoadFullCheckpoint constructs the catalog directly from a single full
// checkpoint file, bypassing the buffer manager. Used when the caller
// already holds the checkpoint's bytes on local disk rather than needing
// them faulted in as pages.
func (c *Controller) LoadFullCheckpoint(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cat != nil {
		c.fatal(c.Mode(), "catalog", "catalog was attached before")
	}

	cat, err := catalog.LoadFullCheckpoint(c.log.Named("catalog"), path)
	if err != nil {
		return err
	}
	c.cat = cat
	return nil
}

// AttachDeltaCheckpoint applies one additional delta checkpoint onto an
// already-attached catalog.
func (c *Controller) AttachDeltaCheckpoint(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cat == nil {
		c.fatal(c.Mode(), "catalog", "no catalog to attach a delta checkpoint to")
	}
	return c.cat.AttachDeltaCheckpoint(path)
}

// CreateDefaultDatabase creates the built-in default database if it does
// not already exist. It is exported for callers bringing up a fresh
// Writable instance outside of bring-up's own step 13, which calls the
// unexported, already-locked variant directly.
func (c *Controller) CreateDefaultDatabase(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createDefaultDatabaseLocked(ctx)
}

func (c *Controller) createDefaultDatabaseLocked(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if c.cat == nil {
		return errs.New("catalog not initialized")
	}
	return c.cat.CreateDatabase("default_db", "Initial startup created", catalog.ConflictIgnore)
}
