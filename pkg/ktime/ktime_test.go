// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package ktime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKtime(t *testing.T) {
	mono, err := Monotonic()
	require.NoError(t, err)

	decoded, err := DecodeKtime(int64(mono)-int64(time.Second), true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(-time.Second), decoded, 100*time.Millisecond)

	assert.WithinDuration(t, time.Now(), ToTime(uint64(mono)), 100*time.Millisecond)
}

func TestNanoTimeSince(t *testing.T) {
	mono, err := Monotonic()
	require.NoError(t, err)
	since, err := NanoTimeSince(int64(mono))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, since, time.Duration(0))
}

func TestDiffKtime(t *testing.T) {
	assert.Equal(t, 5*time.Microsecond, DiffKtime(1000, 6000))
}
