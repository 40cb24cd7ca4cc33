// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package resultcache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/infiniflow/emberdb/resultcache"
)

func TestGetPutRoundtrip(t *testing.T) {
	cache := resultcache.New(10, 0)
	cache.Put("select 1", 42)

	v, ok := cache.Get("select 1")
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestGetMissing(t *testing.T) {
	cache := resultcache.New(10, 0)
	_, ok := cache.Get("nope")
	require.False(t, ok)
}

func TestCapacityEviction(t *testing.T) {
	cache := resultcache.New(2, 0)
	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("c", 3)

	require.Equal(t, 2, cache.Len())
	_, ok := cache.Get("a")
	require.False(t, ok, "oldest entry should have been evicted")
}

func TestExpiration(t *testing.T) {
	cache := resultcache.New(10, 10*time.Millisecond)
	cache.Put("q", "result")

	time.Sleep(20 * time.Millisecond)
	_, ok := cache.Get("q")
	require.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	cache := resultcache.New(10, 0)
	cache.Put("a", 1)
	cache.Put("b", 2)

	cache.Invalidate()
	require.Equal(t, 0, cache.Len())
}
