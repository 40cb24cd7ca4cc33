// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infiniflow/emberdb/types"
)

func TestStorageModeString(t *testing.T) {
	cases := map[types.StorageMode]string{
		types.UnInitialized: "UnInitialized",
		types.Admin:         "Admin",
		types.Readable:      "Readable",
		types.Writable:      "Writable",
		types.StorageMode(99): "Unknown",
	}
	for mode, want := range cases {
		require.Equal(t, want, mode.String())
	}
}

func TestReaderInitPhaseString(t *testing.T) {
	require.Equal(t, "None", types.PhaseNone.String())
	require.Equal(t, "Phase1", types.Phase1.String())
	require.Equal(t, "Phase2", types.Phase2.String())
	require.Equal(t, "Unknown", types.ReaderInitPhase(7).String())
}

func TestNoPriorCheckpointIsZero(t *testing.T) {
	require.Equal(t, types.TxnTimeStamp(0), types.NoPriorCheckpoint)
}
