// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package lifecycle provides a small registry for starting and stopping a
// set of long-running subsystems in a controlled order.
package lifecycle

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Item is one subsystem a Group manages. Run is optional: some items only
// need a Close (e.g. a handle with no background loop). Close is optional
// too and, when present, must be idempotent and safe to call even when Run
// was never invoked.
type Item struct {
	Name  string
	Run   func(ctx context.Context) error
	Close func() error
}

// Group runs and closes a list of Items, in registration order for Run and
// reverse registration order for Close, so a later item that depends on an
// earlier one never outlives it.
type Group struct {
	log   *zap.Logger
	items []Item
}

// NewGroup creates a Group that logs under the given logger.
func NewGroup(log *zap.Logger) *Group {
	return &Group{log: log}
}

// Add registers an item. Add is not safe to call concurrently with Run or
// Close; all registration must happen before the Group is started.
func (group *Group) Add(item Item) {
	group.items = append(group.items, item)
}

// Run starts every item with a Run func in registration order, each on its
// own goroutine managed by errg. A panic inside an item is recovered,
// logged with a condensed stack, and turned into an error so one crashing
// subsystem does not take down the process silently.
func (group *Group) Run(ctx context.Context, errg *errgroup.Group) {
	for _, item := range group.items {
		if item.Run == nil {
			continue
		}
		item := item
		errg.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					stack := condenseStack(debug.Stack())
					group.log.Error("panic", zap.String("name", item.Name), zap.Any("panic", p), zap.ByteString("stack", stack))
					err = errUnexpectedPanic
				}
			}()
			err = item.Run(ctx)
			if err != nil && ctx.Err() == nil {
				group.log.Error("unexpected shutdown", zap.String("name", item.Name), zap.Error(err))
			}
			return err
		})
	}
}

// Close closes every item with a Close func in reverse registration order.
// Close is idempotent: calling it twice, or calling it when Run was never
// called, must not panic.
func (group *Group) Close() error {
	var firstErr error
	for i := len(group.items) - 1; i >= 0; i-- {
		item := group.items[i]
		if item.Close == nil {
			continue
		}
		if err := item.Close(); err != nil {
			group.log.Error("close failed", zap.String("name", item.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
