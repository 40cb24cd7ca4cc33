// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

// Package types holds the small set of value types shared across the
// storage controller and its collaborators, kept dependency-free so every
// subsystem package can import it without risking an import cycle back
// into the controller.
package types

// StorageMode is the operating mode of the storage engine.
type StorageMode int

// StorageMode values, in increasing order of capability. UnInitialized
// precedes Admin, which precedes both Readable and Writable; Readable and
// Writable are siblings and neither dominates the other.
const (
	UnInitialized StorageMode = iota
	Admin
	Readable
	Writable
)

// String implements fmt.Stringer.
func (m StorageMode) String() string {
	switch m {
	case UnInitialized:
		return "UnInitialized"
	case Admin:
		return "Admin"
	case Readable:
		return "Readable"
	case Writable:
		return "Writable"
	default:
		return "Unknown"
	}
}

// ReaderInitPhase tracks the two-step bring-up of Readable mode. It is
// only meaningful while the controller's mode is Readable.
type ReaderInitPhase int

// ReaderInitPhase values.
const (
	PhaseNone ReaderInitPhase = iota
	Phase1
	Phase2
)

// String implements fmt.Stringer.
func (p ReaderInitPhase) String() string {
	switch p {
	case PhaseNone:
		return "None"
	case Phase1:
		return "Phase1"
	case Phase2:
		return "Phase2"
	default:
		return "Unknown"
	}
}

// TxnTimeStamp is a monotonically non-decreasing logical timestamp. The
// value 0 is reserved to mean "no prior checkpoint exists; initialize a
// fresh catalog."
type TxnTimeStamp uint64

// NoPriorCheckpoint is the sentinel TxnTimeStamp returned by WAL replay
// when no prior state exists.
const NoPriorCheckpoint TxnTimeStamp = 0
