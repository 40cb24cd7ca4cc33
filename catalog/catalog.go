// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package catalog implements the in-memory schema and table registry
// (C6): loadable from a full checkpoint plus a list of delta checkpoints,
// and owner of the compaction-algorithm state. Checkpoints are persisted
// as gob-encoded blobs, read back through the buffer manager.
package catalog

import (
	"bytes"
	"encoding/gob"
	"os"
	"sync"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/buffer"
	"github.com/infiniflow/emberdb/types"
)

var mon = monkit.Package()

// ConflictType controls what happens when a database of the same name
// already exists.
type ConflictType int

// ConflictType values.
const (
	ConflictError ConflictType = iota
	ConflictIgnore
)

// Database is one schema namespace in the catalog.
type Database struct {
	Name    string
	Comment string
	Tables  map[string]*Table
}

// Table is a minimal placeholder for table metadata; physical execution
// and schema detail are out of scope for this module.
type Table struct {
	Name    string
	Columns []string
}

// checkpoint is the gob-serializable snapshot written by a full or delta
// checkpoint.
type checkpoint struct {
	Databases map[string]*Database
}

// compactionState tracks the minimal bookkeeping the compaction algorithm
// needs to decide which segments to merge; the merge algorithm itself is
// an external collaborator (spec.md §1) and is not reproduced here.
type compactionState struct {
	initialized   bool
	systemStartTS types.TxnTimeStamp
}

// Catalog is the in-memory schema/table registry.
type Catalog struct {
	log *zap.Logger

	mu        sync.RWMutex
	databases map[string]*Database
	builtins  map[string]struct{}

	compaction compactionState

	memIndexCommitStarted bool
}

// NewCatalog constructs a fresh, empty catalog. Called when WAL replay
// reports no prior checkpoint (system start timestamp 0).
func NewCatalog(log *zap.Logger) *Catalog {
	return &Catalog{
		log:       log,
		databases: make(map[string]*Database),
		builtins:  make(map[string]struct{}),
	}
}

// LoadFullCheckpoint constructs a catalog from a single full checkpoint
// file at path.
func LoadFullCheckpoint(log *zap.Logger, path string) (*Catalog, error) {
	ckp, err := readCheckpoint(path)
	if err != nil {
		return nil, err
	}
	return &Catalog{
		log:       log,
		databases: ckp.Databases,
		builtins:  make(map[string]struct{}),
	}, nil
}

// LoadFromFiles constructs a catalog from a full checkpoint plus a list
// of delta checkpoints, loaded via the buffer manager.
func LoadFromFiles(log *zap.Logger, fullPath string, deltaPaths []string, buf *buffer.Manager) (*Catalog, error) {
	raw, err := buf.ReadPage(fullPath)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	ckp, err := decodeCheckpoint(raw)
	if err != nil {
		return nil, err
	}

	cat := &Catalog{
		log:       log,
		databases: ckp.Databases,
		builtins:  make(map[string]struct{}),
	}

	for _, deltaPath := range deltaPaths {
		raw, err := buf.ReadPage(deltaPath)
		if err != nil {
			return nil, errs.Wrap(err)
		}
		delta, err := decodeCheckpoint(raw)
		if err != nil {
			return nil, err
		}
		cat.applyDelta(delta)
	}

	return cat, nil
}

func (c *Catalog) applyDelta(delta *checkpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, db := range delta.Databases {
		c.databases[name] = db
	}
}

// AttachDeltaCheckpoint appends one delta checkpoint file onto the
// existing catalog. Precondition: the catalog has already been
// constructed (NewCatalog, LoadFullCheckpoint, or LoadFromFiles).
func (c *Catalog) AttachDeltaCheckpoint(path string) error {
	ckp, err := readCheckpoint(path)
	if err != nil {
		return err
	}
	c.applyDelta(ckp)
	return nil
}

// InitCompactionAlg initializes the compaction algorithm's bookkeeping
// from the post-replay system start timestamp. Only called in Writable
// mode when CompactInterval > 0.
func (c *Catalog) InitCompactionAlg(ts types.TxnTimeStamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compaction = compactionState{initialized: true, systemStartTS: ts}
}

// RegisterBuiltins installs the fixed set of built-in scalar functions
// (count, now, version) into the catalog. Full function/cast registration
// is out of scope for this module; this exercises only the registration
// path the controller depends on completing before constructing the
// background task processor.
func (c *Catalog) RegisterBuiltins() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range []string{"count", "now", "version"} {
		c.builtins[name] = struct{}{}
	}
}

// HasBuiltin reports whether name was registered by RegisterBuiltins.
func (c *Catalog) HasBuiltin(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.builtins[name]
	return ok
}

// StartMemoryIndexCommit marks the catalog ready to accept memory-index
// commits. Must be called before MemIndexRecover.
func (c *Catalog) StartMemoryIndexCommit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memIndexCommitStarted = true
}

// MemIndexRecover checks that StartMemoryIndexCommit has run and logs the
// recovery timestamp ts. The recovery algorithm itself is an external
// collaborator: no index data is replayed and buf is not read.
func (c *Catalog) MemIndexRecover(buf *buffer.Manager, ts types.TxnTimeStamp) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.memIndexCommitStarted {
		return errs.New("StartMemoryIndexCommit must be called before MemIndexRecover")
	}
	c.log.Debug("memory index recover", zap.Uint64("system_start_ts", uint64(ts)))
	return nil
}

// CreateDatabase creates a database named name with the given comment.
func (c *Catalog) CreateDatabase(name, comment string, onConflict ConflictType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.databases[name]; exists {
		if onConflict == ConflictIgnore {
			return nil
		}
		return errs.New("database %q already exists", name)
	}

	c.databases[name] = &Database{Name: name, Comment: comment, Tables: make(map[string]*Table)}
	return nil
}

// Database looks up a database by name.
func (c *Catalog) Database(name string) (*Database, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	db, ok := c.databases[name]
	return db, ok
}

// DatabaseCount returns the number of registered databases, for tests and
// diagnostics.
func (c *Catalog) DatabaseCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.databases)
}

// WriteCheckpoint gob-encodes the current catalog state and writes it to
// path, used by the background task processor's forced full checkpoint.
func (c *Catalog) WriteCheckpoint(path string) (err error) {
	defer mon.Task()(nil)(&err)

	c.mu.RLock()
	ckp := checkpoint{Databases: c.databases}
	c.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(err)
	}
	defer func() { err = errs.Combine(err, f.Close()) }()

	return gob.NewEncoder(f).Encode(ckp)
}

func readCheckpoint(path string) (*checkpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return decodeCheckpoint(raw)
}

func decodeCheckpoint(raw []byte) (*checkpoint, error) {
	var ckp checkpoint
	dec := gob.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&ckp); err != nil {
		return nil, errs.Wrap(err)
	}
	if ckp.Databases == nil {
		ckp.Databases = make(map[string]*Database)
	}
	return &ckp, nil
}
