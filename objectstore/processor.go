// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package objectstore

import (
	"go.uber.org/zap"
)

// Processor is the object storage processor's run/stop plumbing. Its
// background loop only waits for Stop; it performs no upload, download,
// retry, or garbage collection work against the remote store and holds
// no state beyond that plumbing.
type Processor struct {
	log  *zap.Logger
	done chan struct{}
}

// NewProcessor constructs the object storage processor. It is only valid
// to construct one while the remote store is initialized.
func NewProcessor(log *zap.Logger) *Processor {
	return &Processor{log: log, done: make(chan struct{})}
}

// Start launches the processor's background loop.
func (p *Processor) Start() {
	go func() {
		<-p.done
	}()
}

// Stop signals the background loop to exit; it does not wait for the
// goroutine to return. Stop is idempotent.
func (p *Processor) Stop() {
	select {
	case <-p.done:
		// already stopped
	default:
		close(p.done)
	}
}
