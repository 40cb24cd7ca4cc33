// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package objectstore_test

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/infiniflow/emberdb/objectstore"
)

func TestProcessorStartStop(t *testing.T) {
	p := objectstore.NewProcessor(zaptest.NewLogger(t))
	p.Start()
	p.Stop()
	p.Stop() // idempotent
}
