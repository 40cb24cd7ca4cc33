// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package bgtask_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/bgtask"
	"github.com/infiniflow/emberdb/catalog"
)

type countingTask struct {
	ran chan struct{}
}

func (t *countingTask) Run(ctx context.Context) error {
	close(t.ran)
	return nil
}

func TestSubmitRunsTask(t *testing.T) {
	proc := bgtask.New(zap.NewNop(), nil, nil)
	require.NoError(t, proc.Start())
	defer func() { require.NoError(t, proc.Stop()) }()

	task := &countingTask{ran: make(chan struct{})}
	require.NoError(t, proc.Submit(task))

	select {
	case <-task.ran:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestForceCheckpointTaskWait(t *testing.T) {
	cat := catalog.NewCatalog(zap.NewNop())
	require.NoError(t, cat.CreateDatabase("db1", "", catalog.ConflictError))

	proc := bgtask.New(zap.NewNop(), nil, cat)
	require.NoError(t, proc.Start())
	defer func() { require.NoError(t, proc.Stop()) }()

	dir := t.TempDir()
	task := bgtask.NewForceCheckpointTask(cat, true, 0, dir)
	require.NoError(t, proc.Submit(task))
	require.NoError(t, task.Wait())

	_, err := os.Stat(filepath.Join(dir, "full-checkpoint"))
	require.NoError(t, err)
}

func TestStopWithoutStartDoesNotDeadlock(t *testing.T) {
	proc := bgtask.New(zap.NewNop(), nil, nil)
	require.NoError(t, proc.Stop())
}

func TestRunCleanupNoopWithoutTrigger(t *testing.T) {
	proc := bgtask.New(zap.NewNop(), nil, nil)
	require.NoError(t, proc.RunCleanup())
}
