// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package catalog_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/catalog"
	"github.com/infiniflow/emberdb/types"
)

func TestCreateDatabaseConflict(t *testing.T) {
	cat := catalog.NewCatalog(zap.NewNop())
	require.NoError(t, cat.CreateDatabase("default_db", "", catalog.ConflictError))
	require.Error(t, cat.CreateDatabase("default_db", "", catalog.ConflictError))
	require.NoError(t, cat.CreateDatabase("default_db", "", catalog.ConflictIgnore))
	require.Equal(t, 1, cat.DatabaseCount())
}

func TestDatabaseLookup(t *testing.T) {
	cat := catalog.NewCatalog(zap.NewNop())
	require.NoError(t, cat.CreateDatabase("db1", "a comment", catalog.ConflictError))

	db, ok := cat.Database("db1")
	require.True(t, ok)
	require.Equal(t, "db1", db.Name)
	require.Equal(t, "a comment", db.Comment)

	_, ok = cat.Database("missing")
	require.False(t, ok)
}

func TestRegisterBuiltins(t *testing.T) {
	cat := catalog.NewCatalog(zap.NewNop())
	require.False(t, cat.HasBuiltin("count"))
	cat.RegisterBuiltins()
	require.True(t, cat.HasBuiltin("count"))
	require.True(t, cat.HasBuiltin("now"))
	require.False(t, cat.HasBuiltin("not-a-builtin"))
}

func TestMemIndexRecoverRequiresStartFirst(t *testing.T) {
	cat := catalog.NewCatalog(zap.NewNop())
	err := cat.MemIndexRecover(nil, types.NoPriorCheckpoint)
	require.Error(t, err)

	cat.StartMemoryIndexCommit()
	require.NoError(t, cat.MemIndexRecover(nil, types.NoPriorCheckpoint))
}

func TestWriteAndLoadFullCheckpoint(t *testing.T) {
	cat := catalog.NewCatalog(zap.NewNop())
	require.NoError(t, cat.CreateDatabase("db1", "", catalog.ConflictError))
	require.NoError(t, cat.CreateDatabase("db2", "", catalog.ConflictError))

	path := filepath.Join(t.TempDir(), "full-checkpoint")
	require.NoError(t, cat.WriteCheckpoint(path))

	loaded, err := catalog.LoadFullCheckpoint(zap.NewNop(), path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.DatabaseCount())

	_, ok := loaded.Database("db1")
	require.True(t, ok)
}

func TestAttachDeltaCheckpoint(t *testing.T) {
	base := catalog.NewCatalog(zap.NewNop())
	require.NoError(t, base.CreateDatabase("db1", "", catalog.ConflictError))
	fullPath := filepath.Join(t.TempDir(), "full-checkpoint")
	require.NoError(t, base.WriteCheckpoint(fullPath))

	delta := catalog.NewCatalog(zap.NewNop())
	require.NoError(t, delta.CreateDatabase("db2", "", catalog.ConflictError))
	deltaPath := filepath.Join(t.TempDir(), "delta-checkpoint")
	require.NoError(t, delta.WriteCheckpoint(deltaPath))

	loaded, err := catalog.LoadFullCheckpoint(zap.NewNop(), fullPath)
	require.NoError(t, err)
	require.NoError(t, loaded.AttachDeltaCheckpoint(deltaPath))

	require.Equal(t, 2, loaded.DatabaseCount())
}
