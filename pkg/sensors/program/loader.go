// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package program

import (
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/btf"
	"github.com/pidtrace/pidtrace/pkg/sensors/unloader"
)

// Backend performs the kernel side of loading and attaching.
type Backend interface {
	// LoadProgram submits p.Spec to the kernel. kernelTypes may be nil
	// for all but LSM programs.
	LoadProgram(p *Program, kernelTypes *btf.Spec) (*ebpf.Program, error)
	AttachTracepoint(prog *ebpf.Program, category, name string) (unloader.Unloader, error)
	AttachKprobe(prog *ebpf.Program, symbol string, ret bool) (unloader.Unloader, error)
	AttachLSM(prog *ebpf.Program) (unloader.Unloader, error)
}

func fail(p *Program, op string, err error) error {
	return &Error{Program: p.Name, Op: op, Err: err}
}

// Load loads p into the kernel. Disabled programs and programs without
// an attach point are refused before reaching the backend.
func Load(b Backend, p *Program, kernelTypes *btf.Spec) error {
	if !p.Enabled {
		p.LoadState = Disabled
		return fail(p, "load", ErrProgramDisabled)
	}
	if p.Attach == "" {
		return fail(p, "load", ErrAttachPointMissing)
	}
	if p.LoadState.IsLoaded() {
		return nil
	}

	switch p.Type {
	case TypeTracepoint, TypeKprobe:
	case TypeLSM:
		if kernelTypes == nil {
			return fail(p, "load", ErrKernelTypesMissing)
		}
	default:
		return fail(p, "load", ErrUnsupportedProgramType)
	}

	prog, err := b.LoadProgram(p, kernelTypes)
	if err != nil {
		return fail(p, "load", err)
	}
	p.prog = prog
	p.LoadState = Loaded
	return nil
}

// Attach attaches a loaded program to its attach point and keeps the
// link for Unload.
func Attach(b Backend, p *Program) error {
	if p.LoadState != Loaded {
		return fail(p, "attach", ErrProgramNotLoaded)
	}

	var (
		u   unloader.Unloader
		err error
	)
	switch p.Type {
	case TypeTracepoint:
		if p.Category == "" {
			return fail(p, "attach", ErrTracepointCategoryMissing)
		}
		if p.Attach == "" {
			return fail(p, "attach", ErrAttachPointMissing)
		}
		u, err = b.AttachTracepoint(p.prog, p.Category, p.Attach)
	case TypeKprobe:
		if p.Attach == "" {
			return fail(p, "attach", ErrAttachPointMissing)
		}
		u, err = b.AttachKprobe(p.prog, p.Attach, p.RetProbe)
	case TypeLSM:
		u, err = b.AttachLSM(p.prog)
	default:
		return fail(p, "attach", ErrUnsupportedProgramType)
	}
	if err != nil {
		return fail(p, "attach", err)
	}

	p.unloader = unloader.ChainUnloader{
		unloader.ProgUnloader{Prog: p.prog},
		u,
	}
	p.LoadState = Attached
	return nil
}

// LoadAndAttach runs Load followed by Attach.
func LoadAndAttach(b Backend, p *Program, kernelTypes *btf.Spec) error {
	if err := Load(b, p, kernelTypes); err != nil {
		return err
	}
	return Attach(b, p)
}
