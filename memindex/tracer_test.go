// Copyright (C) 2024 Infiniflow, Inc.
// See LICENSE for copying information.

package memindex_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infiniflow/emberdb/memindex"
)

func TestReserveWithinQuota(t *testing.T) {
	tr := memindex.New(100, nil, nil)
	require.NoError(t, tr.Reserve(40))
	require.Equal(t, int64(40), tr.Used())
}

func TestReserveExceedingQuotaIsRejectedAndReverted(t *testing.T) {
	tr := memindex.New(100, nil, nil)
	require.NoError(t, tr.Reserve(90))
	require.Error(t, tr.Reserve(20))
	require.Equal(t, int64(90), tr.Used())
}

func TestReleaseGivesBackUsage(t *testing.T) {
	tr := memindex.New(100, nil, nil)
	require.NoError(t, tr.Reserve(50))
	tr.Release(20)
	require.Equal(t, int64(30), tr.Used())
}

func TestUnlimitedQuota(t *testing.T) {
	tr := memindex.New(0, nil, nil)
	require.NoError(t, tr.Reserve(1<<30))
	require.Equal(t, int64(1<<30), tr.Used())
}
