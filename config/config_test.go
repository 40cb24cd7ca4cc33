// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/infiniflow/emberdb/config"
)

func TestClampInterval(t *testing.T) {
	require.Equal(t, time.Duration(0), config.ClampInterval(0))
	require.Equal(t, time.Duration(0), config.ClampInterval(-time.Second))
	require.Equal(t, time.Minute, config.ClampInterval(time.Minute))
}

func TestStorageTypeString(t *testing.T) {
	require.Equal(t, "Local", config.StorageTypeLocal.String())
	require.Equal(t, "Remote", config.StorageTypeRemote.String())
	require.Equal(t, "Unknown", config.StorageType(99).String())
}
