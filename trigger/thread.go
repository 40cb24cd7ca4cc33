// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package trigger

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/infiniflow/emberdb/internal/lifecycle"
)

// Thread is the periodic trigger thread (C11). It owns up to five
// triggers — cleanup (always present) and, in Writable mode,
// full-checkpoint, delta-checkpoint, compact-segment, and optimize-index
// — and runs each on its own ticker once Start is called. A trigger
// whose Interval is 0 is never scheduled at all, keeping the
// "interval <= 0 disables" contract in one place (config.ClampInterval
// is applied by the controller before constructing these triggers). Each
// scheduled trigger is registered as a lifecycle.Item so the whole set
// starts and stops together, mirroring how satellite/core.go groups its
// chores under one lifecycle.Group.
type Thread struct {
	log *zap.Logger

	Cleanup         *CleanupPeriodicTrigger
	FullCheckpoint  *CheckpointPeriodicTrigger
	DeltaCheckpoint *CheckpointPeriodicTrigger
	CompactSegment  *CompactSegmentPeriodicTrigger
	OptimizeIndex   *OptimizeIndexPeriodicTrigger

	// CleanupRunner, if set, is called instead of Cleanup.RunNow on every
	// cleanup tick, routing the fire-on-cadence through the background
	// task processor's queue (bgtask.Processor.RunCleanup) so cleanup
	// serializes with every other catalog-touching background task. Left
	// nil, Cleanup.RunNow runs directly on the ticker goroutine.
	CleanupRunner func() error

	cancel context.CancelFunc
	errg   *errgroup.Group
	group  *lifecycle.Group
}

// New constructs a periodic trigger thread with no triggers installed.
// Callers set the exported fields before calling Start.
func New(log *zap.Logger) *Thread {
	return &Thread{log: log}
}

// Start launches one goroutine per installed, enabled trigger, grouped
// under a lifecycle.Group run against an internal errgroup so a panic in
// one trigger doesn't silently kill the process. Every field is checked
// for nil as its own concrete pointer type before it is ever boxed into
// the Trigger interface: a nil *CheckpointPeriodicTrigger assigned to a
// Trigger-typed parameter becomes a non-nil interface value wrapping a
// nil pointer, so "t == nil" inside addScheduled would never catch an
// unset field and Interval() would panic on the nil receiver instead.
func (th *Thread) Start() error {
	group := lifecycle.NewGroup(th.log)
	th.addCleanupScheduled(group)
	if th.FullCheckpoint != nil {
		th.addScheduled(group, "full-checkpoint", th.FullCheckpoint)
	}
	if th.DeltaCheckpoint != nil {
		th.addScheduled(group, "delta-checkpoint", th.DeltaCheckpoint)
	}
	if th.CompactSegment != nil {
		th.addScheduled(group, "compact-segment", th.CompactSegment)
	}
	if th.OptimizeIndex != nil {
		th.addScheduled(group, "optimize-index", th.OptimizeIndex)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errg, gctx := errgroup.WithContext(ctx)
	group.Run(gctx, errg)

	th.cancel = cancel
	th.errg = errg
	th.group = group
	return nil
}

// addScheduled registers t as a lifecycle.Item running its own ticker
// loop, unless t is disabled (Interval <= 0). Callers must have already
// checked t's concrete pointer for nil before passing it in, since t
// arrives pre-boxed into the Trigger interface.
func (th *Thread) addScheduled(group *lifecycle.Group, name string, t Trigger) {
	if t.Interval() <= 0 {
		return
	}
	group.Add(lifecycle.Item{
		Name: name,
		Run: func(ctx context.Context) error {
			ticker := time.NewTicker(t.Interval())
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := t.RunNow(ctx); err != nil {
						th.log.Error("periodic trigger failed", zap.String("trigger", name), zap.Error(err))
					}
				}
			}
		},
		Close: func() error {
			th.log.Debug("trigger stopped", zap.String("trigger", name))
			return nil
		},
	})
}

// addCleanupScheduled registers the cleanup trigger, routing each tick
// through CleanupRunner when set (the background task processor's
// queue) instead of calling Cleanup.RunNow directly on the ticker
// goroutine.
func (th *Thread) addCleanupScheduled(group *lifecycle.Group) {
	if th.Cleanup == nil || th.Cleanup.Interval() <= 0 {
		return
	}
	interval := th.Cleanup.Interval()
	group.Add(lifecycle.Item{
		Name: "cleanup",
		Run: func(ctx context.Context) error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					var err error
					if th.CleanupRunner != nil {
						err = th.CleanupRunner()
					} else {
						err = th.Cleanup.RunNow(ctx)
					}
					if err != nil {
						th.log.Error("periodic trigger failed", zap.String("trigger", "cleanup"), zap.Error(err))
					}
				}
			}
		},
		Close: func() error {
			th.log.Debug("trigger stopped", zap.String("trigger", "cleanup"))
			return nil
		},
	})
}

// Stop cancels every scheduled goroutine, waits for them to exit, then
// runs the group's Close hooks in reverse registration order. Stop is
// idempotent and safe to call even if Start was never invoked.
func (th *Thread) Stop() error {
	if th.cancel == nil {
		return nil
	}
	th.cancel()
	err := th.errg.Wait()
	closeErr := th.group.Close()
	th.cancel = nil
	th.errg = nil
	th.group = nil
	if err != nil && err != context.Canceled {
		return err
	}
	return closeErr
}
