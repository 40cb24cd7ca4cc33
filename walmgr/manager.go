// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package walmgr implements the write-ahead log manager (C5): an
// append-only log with compaction and checkpoint thresholds that replays
// on startup. The replay algorithm itself is treated as an external
// collaborator contract (see spec.md §1): this package implements just
// enough of it — reading back the last durable checkpoint timestamp — to
// exercise the controller's bring-up ordering.
package walmgr

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/config"
	"github.com/infiniflow/emberdb/types"
)

var mon = monkit.Package()

var checkpointBucket = []byte("checkpoint")

const systemStartTSKey = "system_start_ts"

// ControllerRef is the non-owning back-reference into the storage
// controller that the WAL manager is constructed with. Its validity is
// guaranteed by the controller's teardown ordering (§4.1): the WAL
// manager is always stopped and dropped before the controller itself
// goes away, so the reference never outlives its target.
type ControllerRef interface {
	Mode() types.StorageMode
}

// Manager is the write-ahead log manager.
type Manager struct {
	log *zap.Logger

	controller ControllerRef
	walDir     string
	dataDir    string

	compactThreshold      int64
	deltaCheckpointThresh int64
	flushMethod           config.FlushMethod

	mu      sync.Mutex
	logFile *os.File
	index   *bolt.DB
	started bool
}

// New constructs the WAL manager. It is only instantiated here, never
// started; callers must call Start explicitly once the rest of bring-up
// has completed.
func New(log *zap.Logger, controller ControllerRef, walDir, dataDir string, compactThreshold, deltaCheckpointThresh int64, flushMethod config.FlushMethod) (*Manager, error) {
	if err := os.MkdirAll(walDir, 0700); err != nil {
		return nil, errs.Wrap(err)
	}

	index, err := bolt.Open(filepath.Join(walDir, "wal-index.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errs.Wrap(err)
	}
	err = index.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		return nil, errs.Combine(err, index.Close())
	}

	return &Manager{
		log:                   log,
		controller:            controller,
		walDir:                walDir,
		dataDir:               dataDir,
		compactThreshold:      compactThreshold,
		deltaCheckpointThresh: deltaCheckpointThresh,
		flushMethod:           flushMethod,
		index:                 index,
	}, nil
}

// Start opens the append log for writing. Start must be called strictly
// after the transaction manager has been constructed, since the WAL
// depends on it to know which transactions are safe to flush.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(m.walDir, "wal.log"), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return errs.Wrap(err)
	}
	m.logFile = f
	m.started = true
	m.log.Info("wal manager started", zap.String("dir", m.walDir))
	return nil
}

// Stop closes the append log. It is idempotent and safe to call even if
// Start was never invoked.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.started = false
	if m.logFile == nil {
		return nil
	}
	err := m.logFile.Close()
	m.logFile = nil
	return errs.Wrap(err)
}

// Close releases the checkpoint index. Called once by the controller when
// the WAL manager itself is being dropped (as opposed to Stop, which only
// closes the append log and leaves the Manager able to Start again).
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == nil {
		return nil
	}
	err := m.index.Close()
	m.index = nil
	return errs.Wrap(err)
}

// Replay reads back the last durable system timestamp for the given
// target mode. It returns types.NoPriorCheckpoint iff no prior state
// exists, in which case the caller must initialize a fresh catalog.
func (m *Manager) Replay(ctx context.Context, target types.StorageMode) (ts types.TxnTimeStamp, err error) {
	defer mon.Task()(&ctx)(&err)

	m.log.Info("replaying WAL", zap.Stringer("target", target), zap.Stringer("controller_mode", m.controller.Mode()))

	m.mu.Lock()
	defer m.mu.Unlock()

	var raw uint64
	err = m.index.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(checkpointBucket).Get([]byte(systemStartTSKey))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return errs.New("corrupt checkpoint record")
		}
		for _, b := range v {
			raw = raw<<8 | uint64(b)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return types.TxnTimeStamp(raw), nil
}

// RecordCheckpoint durably records ts as the latest system start
// timestamp, consulted by the next Replay.
func (m *Manager) RecordCheckpoint(ts types.TxnTimeStamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw := uint64(ts)
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(raw)
		raw >>= 8
	}
	return m.index.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointBucket).Put([]byte(systemStartTSKey), buf)
	})
}
