// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package bgtask implements the background task processor (C8): a task
// queue for checkpoints, cleanup, and async catalog operations, run on a
// single worker goroutine so tasks against the catalog never race each
// other.
package bgtask

import (
	"context"
	"sync/atomic"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/catalog"
	"github.com/infiniflow/emberdb/walmgr"
)

var mon = monkit.Package()

// Task is one unit of background work.
type Task interface {
	Run(ctx context.Context) error
}

// CleanupTrigger is the interface the processor needs from whatever
// cleanup trigger the controller has installed; it lets the processor
// invoke cleanup without importing the trigger package.
type CleanupTrigger interface {
	RunNow(ctx context.Context) error
}

// completable is implemented by tasks that support Wait, such as
// ForceCheckpointTask.
type completable interface {
	signalDone(err error)
}

// ForceCheckpointTask asks the catalog to write a full (or delta)
// checkpoint and blocks the submitter until it completes.
type ForceCheckpointTask struct {
	Catalog       *catalog.Catalog
	Full          bool
	SystemStartTS uint64
	CheckpointDir string

	done chan struct{}
	err  error
}

// NewForceCheckpointTask constructs a checkpoint task; call Wait after
// Submit to block until it finishes.
func NewForceCheckpointTask(cat *catalog.Catalog, full bool, systemStartTS uint64, checkpointDir string) *ForceCheckpointTask {
	return &ForceCheckpointTask{
		Catalog:       cat,
		Full:          full,
		SystemStartTS: systemStartTS,
		CheckpointDir: checkpointDir,
		done:          make(chan struct{}),
	}
}

// Run writes the checkpoint.
func (t *ForceCheckpointTask) Run(ctx context.Context) error {
	return t.Catalog.WriteCheckpoint(t.checkpointPath())
}

func (t *ForceCheckpointTask) checkpointPath() string {
	kind := "delta"
	if t.Full {
		kind = "full"
	}
	return t.CheckpointDir + "/" + kind + "-checkpoint"
}

func (t *ForceCheckpointTask) signalDone(err error) {
	t.err = err
	close(t.done)
}

// Wait blocks until the task has run and returns its error, if any.
func (t *ForceCheckpointTask) Wait() error {
	<-t.done
	return t.err
}

// Processor is the background task processor.
type Processor struct {
	log *zap.Logger

	wal     *walmgr.Manager
	catalog *catalog.Catalog

	cleanup CleanupTrigger

	queue   chan Task
	done    chan struct{}
	closed  chan struct{}
	started atomic.Bool
}

// New constructs the background task processor. It depends on the WAL
// manager and catalog only as non-owning back-references for the tasks
// it runs (e.g. a checkpoint task reads the catalog); Stop does not touch
// either.
func New(log *zap.Logger, wal *walmgr.Manager, cat *catalog.Catalog) *Processor {
	return &Processor{
		log:     log,
		wal:     wal,
		catalog: cat,
		queue:   make(chan Task, 64),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// SetCleanupTrigger installs the cleanup trigger the processor runs
// whenever the trigger's own periodic schedule requests it.
func (p *Processor) SetCleanupTrigger(t CleanupTrigger) {
	p.cleanup = t
}

// Start launches the single worker goroutine draining the task queue.
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
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			err := p.runTask(task)
			if err != nil {
				p.log.Error("background task failed", zap.Error(err))
			}
			if c, ok := task.(completable); ok {
				c.signalDone(err)
			}
		}
	}
}

// cleanupTask adapts the installed CleanupTrigger to the Task interface
// so a periodic trigger firing turns into an ordinary queued task,
// serialized with every other background operation against the catalog.
type cleanupTask struct {
	trigger CleanupTrigger
}

func (t cleanupTask) Run(ctx context.Context) error {
	return t.trigger.RunNow(ctx)
}

// RunCleanup enqueues the installed cleanup trigger, if any. It is the
// hook the periodic trigger thread calls on its cleanup cadence.
func (p *Processor) RunCleanup() error {
	if p.cleanup == nil {
		return nil
	}
	return p.Submit(cleanupTask{trigger: p.cleanup})
}

func (p *Processor) runTask(task Task) (err error) {
	defer mon.Task()(nil)(&err)
	return task.Run(context.Background())
}

// Submit enqueues task for the worker goroutine. Submit does not block
// once there's queue capacity; callers that need the result call Wait on
// a completable task such as ForceCheckpointTask.
func (p *Processor) Submit(task Task) error {
	select {
	case p.queue <- task:
		return nil
	case <-p.done:
		return errs.New("background task processor is stopped")
	}
}

// Stop signals the worker goroutine to exit and waits for in-flight work
// to drain. Stop is idempotent and safe to call even if Start was never
// invoked.
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
