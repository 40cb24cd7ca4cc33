// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package config holds the read-only operator configuration consumed by
// the storage controller and its collaborators. Parsing configuration from
// flags, environment, or files is out of scope for this module; callers
// build a Config value themselves and pass it in.
package config

import "time"

// StorageType selects whether the object store gateway is constructed.
type StorageType int

// StorageType values.
const (
	StorageTypeLocal StorageType = iota
	StorageTypeRemote
)

// String implements fmt.Stringer.
func (t StorageType) String() string {
	switch t {
	case StorageTypeLocal:
		return "Local"
	case StorageTypeRemote:
		return "Remote"
	default:
		return "Unknown"
	}
}

// FlushMethod selects the fsync policy applied at commit by the WAL
// manager.
type FlushMethod int

// FlushMethod values.
const (
	FlushAtOnce FlushMethod = iota
	FlushOnlyWrite
	FlushSkip
)

// Config is the immutable snapshot of operator configuration consulted
// during mode transitions. Every field is read-only after construction; no
// component mutates it.
type Config struct {
	StorageType StorageType

	DataDir         string
	TempDir         string
	WALDir          string
	PersistenceDir  string

	ObjectStorageURL       string
	ObjectStorageHTTPS     bool
	ObjectStorageAccessKey string
	ObjectStorageSecretKey string
	ObjectStorageBucket    string

	BufferManagerSize int64
	LRUNum            int

	PersistenceObjectSizeLimit int64

	WALCompactThreshold      int64
	DeltaCheckpointThreshold int64
	FlushMethodAtCommit      FlushMethod

	CompactInterval           time.Duration
	OptimizeIndexInterval     time.Duration
	CleanupInterval           time.Duration
	FullCheckpointInterval    time.Duration
	DeltaCheckpointInterval   time.Duration

	MemIndexMemoryQuota int64

	ResultCache    bool
	CacheResultNum int
}

// ClampInterval coerces non-positive durations to 0, the single place the
// "interval <= 0 disables scheduling" contract is implemented. Triggers
// treat a 0 interval as "skip scheduling".
func ClampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d
}
