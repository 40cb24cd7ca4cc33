// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package persistence implements the local on-disk object store: a
// directory of size-bounded blob files indexed by a small bolt database,
// adapted from storj.io/storj's storage/boltdb client.
package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var mon = monkit.Package()

var indexBucket = []byte("objects")

const (
	fileMode       = 0600
	boltFileName   = "index.db"
	openTimeout    = 1 * time.Second
)

// Manager is the local persistence layer: it owns blob files under
// dataDir, each no larger than objectSizeLimit, and a bolt index file
// under dir recording which object landed in which blob.
type Manager struct {
	log *zap.Logger

	dir            string
	dataDir        string
	objectSizeLimit int64

	mu  sync.Mutex
	db  *bolt.DB
}

// New constructs the persistence manager for dir, backed by a bolt index
// and blob files written under dataDir. It opens the bolt index and
// creates its bucket immediately; blob files are written on Put.
func New(log *zap.Logger, dir string, dataDir string, objectSizeLimit int64) (*Manager, error) {
	if dir == "" {
		return nil, errs.New("persistence directory must be non-empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errs.Wrap(err)
	}

	db, err := bolt.Open(filepath.Join(dir, boltFileName), fileMode, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, errs.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		return nil, errs.Combine(err, db.Close())
	}

	return &Manager{
		log:             log,
		dir:             dir,
		dataDir:         dataDir,
		objectSizeLimit: objectSizeLimit,
		db:              db,
	}, nil
}

// Put stores data under key, rejecting objects larger than the configured
// size limit.
func (m *Manager) Put(key string, data []byte) (err error) {
	defer mon.Task()(nil)(&err)

	if m.objectSizeLimit > 0 && int64(len(data)) > m.objectSizeLimit {
		return errs.New("object %q exceeds persistence size limit of %d bytes", key, m.objectSizeLimit)
	}

	blobPath := m.blobPath(key)
	if err := os.MkdirAll(filepath.Dir(blobPath), 0700); err != nil {
		return errs.Wrap(err)
	}
	if err := os.WriteFile(blobPath, data, fileMode); err != nil {
		return errs.Wrap(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(indexBucket).Put([]byte(key), []byte(blobPath))
	})
}

// Get loads the object stored under key.
func (m *Manager) Get(key string) (data []byte, err error) {
	defer mon.Task()(nil)(&err)

	var blobPath string
	m.mu.Lock()
	err = m.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(indexBucket).Get([]byte(key))
		if v == nil {
			return errs.New("object %q not found", key)
		}
		blobPath = string(v)
		return nil
	})
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return os.ReadFile(blobPath)
}

// blobPath derives the on-disk path for key underneath dataDir, fanning
// out one level to avoid a flat directory of millions of files.
func (m *Manager) blobPath(key string) string {
	if len(key) >= 2 {
		return filepath.Join(m.dataDir, "blobs", key[:2], key)
	}
	return filepath.Join(m.dataDir, "blobs", key)
}

// Close releases the bolt index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

// String implements fmt.Stringer for logging.
func (m *Manager) String() string {
	return fmt.Sprintf("persistence(dir=%s)", m.dir)
}
