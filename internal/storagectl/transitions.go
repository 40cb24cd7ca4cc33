// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package storagectl

import (
	"context"
	"os"

	"github.com/zeebo/errs"
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

// SetMode drives the controller from its current mode to target. It is
// idempotent on current == target (returns nil with a warn log, no
// transition); otherwise it dispatches on the (current, target) pair per
// the transition matrix in spec.md §4.1. SetMode holds the controller's
// mutex for the entire transition: concurrent calls serialize.
func (c *Controller) SetMode(ctx context.Context, target types.StorageMode) (err error) {
	defer mon.Task()(&ctx)(&err)

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.Mode()
	if current == target {
		c.log.Warn("set unchanged mode", zap.Stringer("mode", current))
		return nil
	}

	c.cleanupTracer = newCleanupInfoTracer()

	switch current {
	case types.UnInitialized:
		return c.fromUninitialized(ctx, target)
	case types.Admin:
		return c.fromAdmin(ctx, target)
	case types.Readable:
		return c.fromReadable(ctx, target)
	case types.Writable:
		return c.fromWritable(ctx, target)
	default:
		c.fatal(current, "mode", "unknown current mode")
		return nil
	}
}

// fromUninitialized implements the UnInit row of the transition matrix:
// only UnInit -> Admin is permitted (spec.md §4.1.1); every other target
// is fatal.
func (c *Controller) fromUninitialized(ctx context.Context, target types.StorageMode) error {
	if target != types.Admin {
		c.fatal(types.UnInitialized, "mode", "only UnInit -> Admin is a permitted transition")
	}

	if c.wal != nil {
		c.fatal(types.UnInitialized, "wal", "WAL manager was initialized before")
	}

	c.setModeUnlocked(types.Admin)

	wal, err := walmgr.New(c.log.Named("wal"), c, c.cfg.WALDir, c.cfg.DataDir, c.cfg.WALCompactThreshold, c.cfg.DeltaCheckpointThreshold, c.cfg.FlushMethodAtCommit)
	if err != nil {
		c.setModeUnlocked(types.UnInitialized)
		return err
	}
	c.wal = wal
	c.log.Info("set storage from un-init mode to admin")
	return nil
}

// fromAdmin implements the Admin row: Admin -> UnInit tears down the WAL
// manager (spec.md §4.1.2); Admin -> {Readable, Writable} is the bring-up
// transition (spec.md §4.1.3); Admin -> Admin is unreachable dead code
// (filtered out by the unchanged-mode check in SetMode).
func (c *Controller) fromAdmin(ctx context.Context, target types.StorageMode) error {
	switch target {
	case types.UnInitialized:
		if c.wal != nil {
			_ = c.wal.Close()
		}
		c.wal = nil
		c.log.Info("set storage from admin mode to un-init")
		c.setModeUnlocked(types.UnInitialized)
		return nil
	case types.Readable, types.Writable:
		return c.bringUp(ctx, target)
	default:
		c.fatal(types.Admin, "mode", "unreachable self-transition")
		return nil
	}
}

// bringUp implements spec.md §4.1.3, the Admin -> {Readable, Writable}
// transition. Any failure reverts currentMode to Admin and undoes
// remote-store init if it happened during this call.
func (c *Controller) bringUp(ctx context.Context, target types.StorageMode) error {
	c.setModeUnlocked(target)

	if err := os.MkdirAll(c.cfg.DataDir, 0700); err != nil {
		c.setModeUnlocked(types.Admin)
		return errs.Wrap(err)
	}
	if c.cfg.TempDir != "" {
		if err := os.MkdirAll(c.cfg.TempDir, 0700); err != nil {
			c.setModeUnlocked(types.Admin)
			return errs.Wrap(err)
		}
	}

	remoteInitedHere := false
	revert := func(err error) error {
		if c.bufMgr != nil {
			_ = c.bufMgr.Stop()
			c.bufMgr = nil
		}
		if c.persist != nil {
			_ = c.persist.Close()
			c.persist = nil
		}
		if remoteInitedHere {
			if c.objStoreProc != nil {
				c.objStoreProc.Stop()
				c.objStoreProc = nil
			}
			objectstore.UnInitRemoteStore()
		}
		c.setModeUnlocked(types.Admin)
		return err
	}

	// Step 2: remote object store gateway.
	if c.cfg.StorageType == config.StorageTypeRemote {
		if objectstore.IsInit() {
			c.fatal(target, "object_store", "remote storage system was initialized before")
		}
		c.log.Info("init remote store", zap.String("url", c.cfg.ObjectStorageURL))
		err := objectstore.InitRemoteStore(c.cfg.ObjectStorageURL, c.cfg.ObjectStorageHTTPS, c.cfg.ObjectStorageAccessKey, c.cfg.ObjectStorageSecretKey, c.cfg.ObjectStorageBucket)
		if err != nil {
			c.setModeUnlocked(types.Admin)
			return err
		}
		remoteInitedHere = true

		c.objStoreProc = objectstore.NewProcessor(c.log.Named("object-store"))
		c.objStoreProc.Start()
	}

	// Step 3: persistence manager.
	if c.cfg.PersistenceDir != "" {
		persist, err := persistence.New(c.log.Named("persistence"), c.cfg.PersistenceDir, c.cfg.DataDir, c.cfg.PersistenceObjectSizeLimit)
		if err != nil {
			return revert(err)
		}
		c.persist = persist
	}

	// Step 4: result cache, constructed once and reused across later
	// demotions/promotions.
	if c.resultCache == nil {
		c.resultCache = resultcache.New(c.cfg.CacheResultNum, 0)
	}

	// Step 5: buffer manager.
	var backend buffer.Backend
	if c.persist != nil {
		backend = c.persist
	}
	c.bufMgr = buffer.New(c.log.Named("buffer"), c.cfg.BufferManagerSize, c.cfg.DataDir, c.cfg.TempDir, backend, c.cfg.LRUNum)
	if err := c.bufMgr.Start(ctx); err != nil {
		return revert(err)
	}

	// Step 6: Readable pauses here for the two-phase bootstrap.
	if target == types.Readable {
		c.log.Info("no checkpoint found in reader mode, waiting for log replication")
		c.readerPhase = types.Phase1
		return nil
	}

	// Step 7: WAL replay.
	systemStartTS, err := c.wal.Replay(ctx, target)
	if err != nil {
		return revert(err)
	}
	if systemStartTS == types.NoPriorCheckpoint {
		c.log.Info("init a new catalog")
		c.cat = catalog.NewCatalog(c.log.Named("catalog"))
	} else if c.cat == nil {
		c.fatal(target, "catalog", "no catalog attached before non-zero-timestamp bring-up")
	}

	// Step 8: compaction algorithm bookkeeping.
	compactInterval := config.ClampInterval(c.cfg.CompactInterval)
	if compactInterval > 0 && target == types.Writable {
		c.log.Info("init compaction alg")
		c.cat.InitCompactionAlg(systemStartTS)
	} else {
		c.log.Info("skip init compaction alg")
	}

	// Step 9: built-in functions.
	c.cat.RegisterBuiltins()

	// Step 10: background task processor.
	if c.bgProc != nil {
		c.fatal(target, "bg_proc", "background processor was initialized before")
	}
	c.bgProc = bgtask.New(c.log.Named("bgtask"), c.wal, c.cat)

	// Step 11: transaction manager.
	if c.txnMgr != nil {
		c.fatal(target, "txn_mgr", "transaction manager was initialized before")
	}
	c.txnMgr = txn.New(c.log.Named("txn"), c.bufMgr, c.wal, systemStartTS)
	if err := c.txnMgr.Start(); err != nil {
		return revert(err)
	}

	// Step 12: start WAL strictly after the transaction manager.
	if err := c.wal.Start(); err != nil {
		return revert(err)
	}

	// Step 13: default database.
	if systemStartTS == types.NoPriorCheckpoint && target == types.Writable {
		if err := c.createDefaultDatabaseLocked(ctx); err != nil {
			c.fatal(target, "catalog", "can't initialize default_db: "+err.Error())
		}
	}

	// Step 14: memory index tracer.
	if c.memIdxTracer != nil {
		c.fatal(target, "mem_idx_tracer", "memory index tracer was initialized before")
	}
	c.memIdxTracer = memindex.New(c.cfg.MemIndexMemoryQuota, c.cat, c.txnMgr)

	// Step 15: start background processor.
	if err := c.bgProc.Start(); err != nil {
		return revert(err)
	}

	// Step 16: compaction processor (Writable only).
	if target == types.Writable {
		if c.compactProc != nil {
			c.fatal(target, "compact_proc", "compaction processor was initialized before")
		}
		c.compactProc = compaction.New(c.log.Named("compaction"), c.cat, c.txnMgr)
		if err := c.compactProc.Start(); err != nil {
			return revert(err)
		}
	}

	// Step 17: memory index recovery.
	c.cat.StartMemoryIndexCommit()
	if err := c.cat.MemIndexRecover(c.bufMgr, systemStartTS); err != nil {
		return revert(err)
	}

	// Step 18: periodic trigger thread.
	if c.periodicThread != nil {
		c.fatal(target, "periodic_thread", "periodic trigger was initialized before")
	}
	th := trigger.New(c.log.Named("trigger"))
	if target == types.Writable {
		th.FullCheckpoint = trigger.NewCheckpointTrigger(config.ClampInterval(c.cfg.FullCheckpointInterval), c.wal, true)
		th.DeltaCheckpoint = trigger.NewCheckpointTrigger(config.ClampInterval(c.cfg.DeltaCheckpointInterval), c.wal, false)
		th.CompactSegment = trigger.NewCompactSegmentTrigger(compactInterval, c.compactProc)
		th.OptimizeIndex = trigger.NewOptimizeIndexTrigger(config.ClampInterval(c.cfg.OptimizeIndexInterval), c.compactProc)
	}
	th.Cleanup = trigger.NewCleanupTrigger(c.log.Named("cleanup"), config.ClampInterval(c.cfg.CleanupInterval), c.cat, c.txnMgr)
	c.periodicThread = th

	// Step 19: register cleanup trigger with the background processor so
	// its ticks enqueue through the same worker as every other
	// catalog-touching background task instead of running inline.
	c.bgProc.SetCleanupTrigger(th.Cleanup)
	th.CleanupRunner = c.bgProc.RunCleanup

	// Step 20: forced full checkpoint (Writable only).
	tx := c.txnMgr.BeginTxn("ForceCheckpointTask")
	task := bgtask.NewForceCheckpointTask(c.cat, true, uint64(systemStartTS), c.cfg.DataDir)
	if err := c.bgProc.Submit(task); err != nil {
		c.fatal(target, "bg_proc", "failed to submit forced checkpoint task: "+err.Error())
	}
	if err := task.Wait(); err != nil {
		c.fatal(target, "bg_proc", "forced checkpoint failed: "+err.Error())
	}
	tx.SetReaderAllowed(true)
	if err := c.txnMgr.CommitTxn(tx); err != nil {
		c.fatal(target, "txn_mgr", "failed to commit forced checkpoint txn: "+err.Error())
	}

	// Step 21: start the periodic trigger thread.
	if err := c.periodicThread.Start(); err != nil {
		return revert(err)
	}

	return nil
}

// fromReadable implements the Readable row: teardown to UnInit/Admin,
// promotion to Writable, and the fatal Readable -> Readable self-
// transition (unreachable, filtered by SetMode's unchanged-mode check).
func (c *Controller) fromReadable(ctx context.Context, target types.StorageMode) error {
	switch target {
	case types.Readable:
		c.fatal(types.Readable, "mode", "unreachable self-transition")
		return nil
	case types.UnInitialized, types.Admin:
		return c.teardownFromDataPlane(ctx, types.Readable, target)
	case types.Writable:
		return c.promoteReadableToWritable(ctx)
	default:
		c.fatal(types.Readable, "mode", "unknown target mode")
		return nil
	}
}

// promoteReadableToWritable implements spec.md §4.1.5's promotion path.
func (c *Controller) promoteReadableToWritable(ctx context.Context) error {
	if c.compactProc != nil {
		c.fatal(types.Readable, "compact_proc", "compaction processor was initialized before")
	}
	c.compactProc = compaction.New(c.log.Named("compaction"), c.cat, c.txnMgr)
	if err := c.compactProc.Start(); err != nil {
		return err
	}

	if err := c.periodicThread.Stop(); err != nil {
		return err
	}

	compactInterval := config.ClampInterval(c.cfg.CompactInterval)
	th := trigger.New(c.log.Named("trigger"))
	th.Cleanup = trigger.NewCleanupTrigger(c.log.Named("cleanup"), config.ClampInterval(c.cfg.CleanupInterval), c.cat, c.txnMgr)
	th.FullCheckpoint = trigger.NewCheckpointTrigger(config.ClampInterval(c.cfg.FullCheckpointInterval), c.wal, true)
	th.DeltaCheckpoint = trigger.NewCheckpointTrigger(config.ClampInterval(c.cfg.DeltaCheckpointInterval), c.wal, false)
	th.CompactSegment = trigger.NewCompactSegmentTrigger(compactInterval, c.compactProc)
	th.OptimizeIndex = trigger.NewOptimizeIndexTrigger(config.ClampInterval(c.cfg.OptimizeIndexInterval), c.compactProc)
	c.periodicThread = th
	c.bgProc.SetCleanupTrigger(th.Cleanup)
	th.CleanupRunner = c.bgProc.RunCleanup
	if err := c.periodicThread.Start(); err != nil {
		return err
	}

	c.setModeUnlocked(types.Writable)
	return nil
}

// fromWritable implements the Writable row: teardown to UnInit/Admin,
// demotion to Readable, and the fatal Writable -> Writable self-
// transition (unreachable, filtered by SetMode's unchanged-mode check).
func (c *Controller) fromWritable(ctx context.Context, target types.StorageMode) error {
	switch target {
	case types.Writable:
		c.fatal(types.Writable, "mode", "unreachable self-transition")
		return nil
	case types.UnInitialized, types.Admin:
		return c.teardownFromDataPlane(ctx, types.Writable, target)
	case types.Readable:
		return c.demoteWritableToReadable(ctx)
	default:
		c.fatal(types.Writable, "mode", "unknown target mode")
		return nil
	}
}

// demoteWritableToReadable implements spec.md §4.1.6's demotion path.
// bg_proc, catalog, txn_mgr, buffer_mgr, and wal remain live.
func (c *Controller) demoteWritableToReadable(ctx context.Context) error {
	if err := c.periodicThread.Stop(); err != nil {
		return err
	}
	c.periodicThread = nil

	if err := c.compactProc.Stop(); err != nil {
		return err
	}
	c.compactProc = nil

	th := trigger.New(c.log.Named("trigger"))
	th.Cleanup = trigger.NewCleanupTrigger(c.log.Named("cleanup"), config.ClampInterval(c.cfg.CleanupInterval), c.cat, c.txnMgr)
	c.periodicThread = th
	c.bgProc.SetCleanupTrigger(th.Cleanup)
	th.CleanupRunner = c.bgProc.RunCleanup
	if err := c.periodicThread.Start(); err != nil {
		return err
	}

	c.readerPhase = types.Phase2
	c.setModeUnlocked(types.Readable)
	return nil
}

// teardownFromDataPlane implements the shared teardown ordering used by
// Readable -> {UnInit, Admin} (spec.md §4.1.5) and Writable -> {UnInit,
// Admin} (spec.md §4.1.6): periodic triggers stop first, then active
// processors drain, then data-plane managers drop, finally persistence.
// from distinguishes the two source modes only to check the Readable-only
// precondition (reader_phase must be Phase2) and to drop compact_proc
// only when it could have existed (Writable).
func (c *Controller) teardownFromDataPlane(ctx context.Context, from, target types.StorageMode) error {
	if from == types.Readable {
		if c.readerPhase != types.Phase2 {
			c.fatal(types.Readable, "reader_phase", "tearing down Phase1 is not allowed")
		}
		if c.compactProc != nil {
			c.fatal(types.Readable, "compact_proc", "compaction processor should not exist in Readable")
		}
	}

	if c.periodicThread != nil {
		if err := c.periodicThread.Stop(); err != nil {
			return err
		}
		c.periodicThread = nil
	}

	if from == types.Writable && c.compactProc != nil {
		if err := c.compactProc.Stop(); err != nil {
			return err
		}
		c.compactProc = nil
	}

	if c.bgProc != nil {
		if err := c.bgProc.Stop(); err != nil {
			return err
		}
		c.bgProc = nil
	}

	c.cat = nil
	c.memIdxTracer = nil

	if c.wal != nil {
		if err := c.wal.Stop(); err != nil {
			return err
		}
		_ = c.wal.Close()
		c.wal = nil
	}

	if c.cfg.StorageType == config.StorageTypeRemote && c.objStoreProc != nil {
		c.objStoreProc.Stop()
		c.objStoreProc = nil
		objectstore.UnInitRemoteStore()
	}

	if c.txnMgr != nil {
		if err := c.txnMgr.Stop(); err != nil {
			return err
		}
		c.txnMgr = nil
	}

	if c.bufMgr != nil {
		if err := c.bufMgr.Stop(); err != nil {
			return err
		}
		c.bufMgr = nil
	}

	if c.persist != nil {
		if err := c.persist.Close(); err != nil {
			return err
		}
		c.persist = nil
	}

	if target == types.Admin {
		wal, err := walmgr.New(c.log.Named("wal"), c, c.cfg.WALDir, c.cfg.DataDir, c.cfg.WALCompactThreshold, c.cfg.DeltaCheckpointThreshold, c.cfg.FlushMethodAtCommit)
		if err != nil {
			return err
		}
		c.wal = wal
	}

	c.setModeUnlocked(target)
	return nil
}
