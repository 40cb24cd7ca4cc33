// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package buffer implements the page cache (C4) in front of the
// persistence backend. Eviction is adapted from storj.io/storj's
// shared/lrucache generic LRU: a fixed number of independent LRU classes,
// each holding a share of the configured capacity, so one hot scan
// pattern in one class cannot evict pages belonging to another.
package buffer

import (
	"container/list"
	"context"
	"sync"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var mon = monkit.Package()

// Backend is the non-owning interface the buffer manager uses to fault a
// page in from durable storage when it's not resident. Buffer never owns
// the backend's lifecycle; the controller does, and it is the
// controller's teardown order (buffer dropped before persistence) that
// keeps this reference valid for as long as the Manager is alive.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
}

type entry struct {
	key   string
	value []byte
	order *list.Element
}

// class is one LRU partition of the buffer pool.
type class struct {
	mu       sync.Mutex
	capacity int
	data     map[string]*entry
	order    *list.List
}

func newClass(capacity int) *class {
	return &class{
		capacity: capacity,
		data:     make(map[string]*entry),
		order:    list.New(),
	}
}

func (c *class) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(e.order)
	return e.value, true
}

func (c *class) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.data[key]; ok {
		e.value = value
		c.order.MoveToFront(e.order)
		return
	}
	e := &entry{key: key, value: value}
	e.order = c.order.PushFront(e)
	c.data[key] = e

	for c.capacity > 0 && len(c.data) > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*entry)
		c.order.Remove(back)
		delete(c.data, evicted.key)
	}
}

func (c *class) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Manager is the buffer pool (C4): it caches pages across a fixed number
// of LRU classes, and falls through to an optional Backend (the
// persistence manager) on a miss. It records dataDir and tempDir but
// reads and writes no files in them.
type Manager struct {
	log *zap.Logger

	dataDir string
	tempDir string
	backend Backend // may be nil when no persistence manager is configured

	classes []*class

	started bool
}

// New constructs the buffer manager. poolSize is the total page-cache
// budget in bytes, divided evenly across lruNum classes using a fixed
// average page size estimate; backend may be nil.
func New(log *zap.Logger, poolSize int64, dataDir, tempDir string, backend Backend, lruNum int) *Manager {
	if lruNum < 1 {
		lruNum = 1
	}
	const avgPageSize = 8 * 1024
	perClassCapacity := int(poolSize / int64(lruNum) / avgPageSize)
	if perClassCapacity < 1 {
		perClassCapacity = 1
	}

	classes := make([]*class, lruNum)
	for i := range classes {
		classes[i] = newClass(perClassCapacity)
	}

	return &Manager{
		log:     log,
		dataDir: dataDir,
		tempDir: tempDir,
		backend: backend,
		classes: classes,
	}
}

func (m *Manager) classFor(key string) *class {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return m.classes[h%uint32(len(m.classes))]
}

// Start marks the buffer manager live. It has no background loop of its
// own; Start exists so the controller can treat it uniformly with the
// other subsystems it wires up and tears down.
func (m *Manager) Start(_ context.Context) error {
	m.started = true
	return nil
}

// Stop is idempotent and safe even if Start was never called.
func (m *Manager) Stop() error {
	m.started = false
	return nil
}

// ReadPage returns the page at key, consulting the cache first and then
// the backend on a miss.
func (m *Manager) ReadPage(key string) (data []byte, err error) {
	defer mon.Task()(nil)(&err)

	c := m.classFor(key)
	if v, ok := c.get(key); ok {
		return v, nil
	}
	if m.backend == nil {
		return nil, errs.New("page %q not cached and no backend configured", key)
	}
	data, err = m.backend.Get(key)
	if err != nil {
		return nil, err
	}
	c.put(key, data)
	return data, nil
}

// WritePage writes a page through the cache and, if a backend is
// configured, through to durable storage.
func (m *Manager) WritePage(key string, data []byte) (err error) {
	defer mon.Task()(nil)(&err)

	m.classFor(key).put(key, data)
	if m.backend == nil {
		return nil
	}
	return m.backend.Put(key, data)
}

// ResidentPages returns the total number of pages currently cached across
// all LRU classes, for diagnostics and tests.
func (m *Manager) ResidentPages() int {
	total := 0
	for _, c := range m.classes {
		total += c.len()
	}
	return total
}
