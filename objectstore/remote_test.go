// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package objectstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infiniflow/emberdb/objectstore"
)

func TestUnInitIsIdempotentWhenNeverInitialized(t *testing.T) {
	objectstore.UnInitRemoteStore()
	require.False(t, objectstore.IsInit())
	objectstore.UnInitRemoteStore()
	require.False(t, objectstore.IsInit())
}

func TestPutGetBeforeInitFail(t *testing.T) {
	objectstore.UnInitRemoteStore()
	require.False(t, objectstore.IsInit())

	err := objectstore.PutObject("key", []byte("data"), "application/octet-stream")
	require.Error(t, err)

	_, err = objectstore.GetObject("key")
	require.Error(t, err)
}
