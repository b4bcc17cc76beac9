// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package unloader

import (
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"go.uber.org/multierr"
)

// Unloader describes how to unload a sensor resource, e.g.
// programs or links.
type Unloader interface {
	Unload() error
}

// ChainUnloader unloads multiple resources in reverse order.
// Useful when a loading operation needs to be unwound.
type ChainUnloader []Unloader

func (cu ChainUnloader) Unload() error {
	var err error
	for i := len(cu) - 1; i >= 0; i-- {
		// Allow nil unloader, we just skip it..
		if cu[i] == nil {
			continue
		}
		err = multierr.Append(err, cu[i].Unload())
	}
	return err
}

// ProgUnloader closes a BPF program.
type ProgUnloader struct {
	Prog *ebpf.Program
}

func (pu ProgUnloader) Unload() error {
	if pu.Prog == nil {
		return nil
	}
	return pu.Prog.Close()
}

// LinkUnloader detaches and closes a link.
type LinkUnloader struct {
	Link link.Link
}

func (lu LinkUnloader) Unload() error {
	if lu.Link == nil {
		return nil
	}
	return lu.Link.Close()
}

// Func adapts a plain function.
type Func func() error

func (f Func) Unload() error { return f() }
