// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package persistence_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/persistence"
)

func TestPutGetRoundtrip(t *testing.T) {
	mgr, err := persistence.New(zap.NewNop(), t.TempDir(), t.TempDir(), 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, mgr.Close()) }()

	require.NoError(t, mgr.Put("object-1", []byte("payload")))

	data, err := mgr.Get("object-1")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)
}

func TestGetMissingObject(t *testing.T) {
	mgr, err := persistence.New(zap.NewNop(), t.TempDir(), t.TempDir(), 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, mgr.Close()) }()

	_, err = mgr.Get("does-not-exist")
	require.Error(t, err)
}

func TestPutRejectsOversizeObject(t *testing.T) {
	mgr, err := persistence.New(zap.NewNop(), t.TempDir(), t.TempDir(), 4)
	require.NoError(t, err)
	defer func() { require.NoError(t, mgr.Close()) }()

	err = mgr.Put("too-big", []byte("way too much data"))
	require.Error(t, err)
}

func TestNewRejectsEmptyDir(t *testing.T) {
	_, err := persistence.New(zap.NewNop(), "", t.TempDir(), 0)
	require.Error(t, err)
}
