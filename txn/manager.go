// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package txn implements the transaction manager (C7): a timestamp
// allocator and active-transaction table sitting on top of the buffer
// manager and WAL manager.
package txn

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/buffer"
	"github.com/infiniflow/emberdb/types"
	"github.com/infiniflow/emberdb/walmgr"
)

// Txn is one in-flight transaction.
type Txn struct {
	ID            uuid.UUID
	Name          string
	BeginTS       types.TxnTimeStamp
	CommitTS      types.TxnTimeStamp
	ReaderAllowed bool

	committed bool
}

// SetReaderAllowed marks the transaction's writes visible to concurrent
// readers once committed, mirroring the original's reader-allowed flag
// used by the forced checkpoint task and CreateDefaultDB.
func (t *Txn) SetReaderAllowed(allowed bool) {
	t.ReaderAllowed = allowed
}

// Manager is the transaction manager.
type Manager struct {
	log *zap.Logger

	buf *buffer.Manager
	wal *walmgr.Manager

	nextTS  atomic.Uint64
	started atomic.Bool

	mu     sync.Mutex
	active map[uuid.UUID]*Txn
}

// New constructs the transaction manager. systemStartTS is the post-replay
// logical time from which new timestamps are issued.
func New(log *zap.Logger, buf *buffer.Manager, wal *walmgr.Manager, systemStartTS types.TxnTimeStamp) *Manager {
	m := &Manager{
		log:    log,
		buf:    buf,
		wal:    wal,
		active: make(map[uuid.UUID]*Txn),
	}
	m.nextTS.Store(uint64(systemStartTS))
	return m
}

// Start marks the transaction manager live.
func (m *Manager) Start() error {
	m.started.Store(true)
	return nil
}

// Stop is idempotent and safe to call even if Start was never invoked.
// It does not forcibly abort active transactions; callers are expected to
// have drained them before tearing the manager down.
func (m *Manager) Stop() error {
	m.started.Store(false)
	return nil
}

// BeginTxn allocates a new timestamp and registers a transaction named
// name as active.
func (m *Manager) BeginTxn(name string) *Txn {
	t := &Txn{
		ID:      uuid.New(),
		Name:    name,
		BeginTS: types.TxnTimeStamp(m.nextTS.Add(1)),
	}
	m.mu.Lock()
	m.active[t.ID] = t
	m.mu.Unlock()
	return t
}

// CommitTxn allocates a commit timestamp and removes the transaction from
// the active table. It writes no commit record to the WAL.
func (m *Manager) CommitTxn(t *Txn) error {
	m.mu.Lock()
	if _, ok := m.active[t.ID]; !ok {
		m.mu.Unlock()
		return errs.New("commit of unknown or already-committed transaction %s", t.ID)
	}
	delete(m.active, t.ID)
	m.mu.Unlock()

	t.CommitTS = types.TxnTimeStamp(m.nextTS.Add(1))
	t.committed = true
	return nil
}

// ActiveCount returns the number of currently active transactions, for
// tests and diagnostics.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// LatestTS returns the most recently allocated timestamp.
func (m *Manager) LatestTS() types.TxnTimeStamp {
	return types.TxnTimeStamp(m.nextTS.Load())
}
