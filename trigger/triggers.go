// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package trigger implements the periodic trigger thread (C11): a
// scheduler for recurring work (full/delta checkpoint, compact,
// optimize-index, cleanup), grounded on the Run(ctx)/Loop chore
// convention used throughout storj.io/storj's satellite/core.go (e.g.
// version_checker.Chore, debug.Cycle).
package trigger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/catalog"
	"github.com/infiniflow/emberdb/compaction"
	"github.com/infiniflow/emberdb/txn"
	"github.com/infiniflow/emberdb/types"
	"github.com/infiniflow/emberdb/walmgr"
)

// Trigger is one recurring piece of work. An Interval of 0 means
// "disabled": the periodic trigger thread does not schedule it at all.
type Trigger interface {
	Interval() time.Duration
	RunNow(ctx context.Context) error
}

// CheckpointPeriodicTrigger asks the WAL manager to record a checkpoint
// on a fixed cadence; full distinguishes a full checkpoint from a delta.
type CheckpointPeriodicTrigger struct {
	interval time.Duration
	wal      *walmgr.Manager
	full     bool
}

// NewCheckpointTrigger constructs a checkpoint trigger.
func NewCheckpointTrigger(interval time.Duration, wal *walmgr.Manager, full bool) *CheckpointPeriodicTrigger {
	return &CheckpointPeriodicTrigger{interval: interval, wal: wal, full: full}
}

// Interval implements Trigger.
func (t *CheckpointPeriodicTrigger) Interval() time.Duration { return t.interval }

// RunNow implements Trigger. The checkpoint format and the timestamp it
// should be taken at are external collaborator concerns (spec.md §1);
// this records a checkpoint at the zero timestamp, which is sufficient to
// exercise the trigger's scheduling and the WAL manager's durability
// path together.
func (t *CheckpointPeriodicTrigger) RunNow(ctx context.Context) error {
	return t.wal.RecordCheckpoint(types.NoPriorCheckpoint)
}

// CompactSegmentPeriodicTrigger asks the compaction processor to run a
// pass on a fixed cadence.
type CompactSegmentPeriodicTrigger struct {
	interval time.Duration
	compact  *compaction.Processor
}

// NewCompactSegmentTrigger constructs a compact-segment trigger.
func NewCompactSegmentTrigger(interval time.Duration, compact *compaction.Processor) *CompactSegmentPeriodicTrigger {
	return &CompactSegmentPeriodicTrigger{interval: interval, compact: compact}
}

// Interval implements Trigger.
func (t *CompactSegmentPeriodicTrigger) Interval() time.Duration { return t.interval }

// RunNow implements Trigger.
func (t *CompactSegmentPeriodicTrigger) RunNow(ctx context.Context) error {
	t.compact.TriggerCompact()
	return nil
}

// OptimizeIndexPeriodicTrigger asks the compaction processor to optimize
// indexes on a fixed cadence. Index optimization shares the compaction
// processor's worker rather than owning a separate one.
type OptimizeIndexPeriodicTrigger struct {
	interval time.Duration
	compact  *compaction.Processor
}

// NewOptimizeIndexTrigger constructs an optimize-index trigger.
func NewOptimizeIndexTrigger(interval time.Duration, compact *compaction.Processor) *OptimizeIndexPeriodicTrigger {
	return &OptimizeIndexPeriodicTrigger{interval: interval, compact: compact}
}

// Interval implements Trigger.
func (t *OptimizeIndexPeriodicTrigger) Interval() time.Duration { return t.interval }

// RunNow implements Trigger.
func (t *OptimizeIndexPeriodicTrigger) RunNow(ctx context.Context) error {
	t.compact.TriggerCompact()
	return nil
}

// CleanupPeriodicTrigger runs a cleanup pass on a fixed cadence; a pass
// logs the number of active transactions and reclaims nothing itself. It
// is registered with the
// background task processor (bgtask.CleanupTrigger) so cleanup work
// serializes with every other catalog-touching background task, and is
// also the one trigger present in every mode's periodic trigger thread.
type CleanupPeriodicTrigger struct {
	interval time.Duration
	catalog  *catalog.Catalog
	txnMgr   *txn.Manager
	log      *zap.Logger
}

// NewCleanupTrigger constructs the cleanup trigger.
func NewCleanupTrigger(log *zap.Logger, interval time.Duration, cat *catalog.Catalog, txnMgr *txn.Manager) *CleanupPeriodicTrigger {
	return &CleanupPeriodicTrigger{log: log, interval: interval, catalog: cat, txnMgr: txnMgr}
}

// Interval implements Trigger.
func (t *CleanupPeriodicTrigger) Interval() time.Duration { return t.interval }

// RunNow implements Trigger and bgtask.CleanupTrigger.
func (t *CleanupPeriodicTrigger) RunNow(ctx context.Context) error {
	t.log.Debug("cleanup pass", zap.Int("active_txns", t.txnMgr.ActiveCount()))
	return nil
}
