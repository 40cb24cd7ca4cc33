// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package buffer_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/infiniflow/emberdb/buffer"
)

type fakeBackend struct {
	mu    sync.Mutex
	pages map[string][]byte
	gets  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{pages: make(map[string][]byte)}
}

func (b *fakeBackend) Get(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	v, ok := b.pages[key]
	if !ok {
		return nil, errNotFound
	}
	return v, nil
}

func (b *fakeBackend) Put(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[key] = data
	return nil
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }

func TestManagerWriteThenRead(t *testing.T) {
	backend := newFakeBackend()
	mgr := buffer.New(zap.NewNop(), 1<<20, t.TempDir(), t.TempDir(), backend, 4)
	require.NoError(t, mgr.Start(context.Background()))
	defer func() { require.NoError(t, mgr.Stop()) }()

	require.NoError(t, mgr.WritePage("page-1", []byte("hello")))
	data, err := mgr.ReadPage("page-1")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

func TestManagerFaultsThroughBackendOnMiss(t *testing.T) {
	backend := newFakeBackend()
	require.NoError(t, backend.Put("page-2", []byte("from-backend")))

	mgr := buffer.New(zap.NewNop(), 1<<20, t.TempDir(), t.TempDir(), backend, 4)
	require.NoError(t, mgr.Start(context.Background()))

	data, err := mgr.ReadPage("page-2")
	require.NoError(t, err)
	require.Equal(t, []byte("from-backend"), data)
	require.Equal(t, 1, backend.gets)

	// Second read is served from the cache, not the backend.
	_, err = mgr.ReadPage("page-2")
	require.NoError(t, err)
	require.Equal(t, 1, backend.gets)
}

func TestManagerReadMissWithoutBackend(t *testing.T) {
	mgr := buffer.New(zap.NewNop(), 1<<20, t.TempDir(), t.TempDir(), nil, 2)
	_, err := mgr.ReadPage("missing")
	require.Error(t, err)
}

func TestManagerStopIsIdempotentWithoutStart(t *testing.T) {
	mgr := buffer.New(zap.NewNop(), 1<<20, t.TempDir(), t.TempDir(), nil, 2)
	require.NoError(t, mgr.Stop())
	require.NoError(t, mgr.Stop())
}

func TestManagerEvictsUnderCapacityPressure(t *testing.T) {
	backend := newFakeBackend()
	// Tiny pool: one class, capacity resolves to at least 1 page.
	mgr := buffer.New(zap.NewNop(), 8*1024, t.TempDir(), t.TempDir(), backend, 1)
	require.NoError(t, mgr.Start(context.Background()))

	for i := 0; i < 10; i++ {
		require.NoError(t, mgr.WritePage(keyFor(i), []byte("x")))
	}
	require.LessOrEqual(t, mgr.ResidentPages(), 2)
}

func keyFor(i int) string {
	return string(rune('a' + i))
}
