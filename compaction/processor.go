// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package compaction implements the segment merge scheduler (C9). It
// only runs in Writable mode: Readable never creates one.
package compaction

import (
	"context"
	"sync/atomic"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/catalog"
	"github.com/infiniflow/emberdb/txn"
)

var mon = monkit.Package()

// Processor is the compaction processor. The merge algorithm itself is
// an external collaborator (spec.md §1); this type owns the scheduling
// loop and its start/stop lifecycle, which is what the controller's
// ordering guarantees are about.
type Processor struct {
	log     *zap.Logger
	catalog *catalog.Catalog
	txnMgr  *txn.Manager

	trigger chan struct{}
	done    chan struct{}
	closed  chan struct{}
	started atomic.Bool
}

// New constructs the compaction processor.
func New(log *zap.Logger, cat *catalog.Catalog, txnMgr *txn.Manager) *Processor {
	return &Processor{
		log:     log,
		catalog: cat,
		txnMgr:  txnMgr,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Start launches the compaction worker goroutine.
func (p *Processor) Start() error {
	p.started.Store(true)
	go p.run()
	return nil
}

func (p *Processor) run() {
	defer close(p.closed)
	for {
		select {
		case <-p.done:
			return
		case <-p.trigger:
			if err := p.compactOnce(context.Background()); err != nil {
				p.log.Error("compaction pass failed", zap.Error(err))
			}
		}
	}
}

func (p *Processor) compactOnce(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	p.log.Debug("compaction pass", zap.Int("databases", p.catalog.DatabaseCount()))
	return nil
}

// TriggerCompact requests a compaction pass; it is non-blocking and
// coalesces with any pass already queued.
func (p *Processor) TriggerCompact() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stop signals the worker goroutine to exit and waits for the in-flight
// pass, if any, to drain. Stop is idempotent and safe even if Start was
// never invoked.
func (p *Processor) Stop() error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	if p.started.Load() {
		<-p.closed
	}
	return nil
}
