// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package unloader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestChainUnloaderOrder(t *testing.T) {
	var order []int
	rec := func(i int) Unloader {
		return Func(func() error {
			order = append(order, i)
			return nil
		})
	}

	cu := ChainUnloader{rec(1), nil, rec(2), rec(3)}
	require.NoError(t, cu.Unload())
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestChainUnloaderErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	called := false

	cu := ChainUnloader{
		Func(func() error { return errA }),
		Func(func() error { called = true; return nil }),
		Func(func() error { return errB }),
	}
	err := cu.Unload()
	require.Error(t, err)
	assert.True(t, called, "a failing unloader must not stop the chain")
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestNilResources(t *testing.T) {
	assert.NoError(t, ProgUnloader{}.Unload())
	assert.NoError(t, LinkUnloader{}.Unload())
}
