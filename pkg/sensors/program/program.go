// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package program

import (
	"fmt"
	"strings"

	"github.com/cilium/ebpf"
	"github.com/pidtrace/pidtrace/pkg/sensors/unloader"
)

// Type is the kind of program, selecting how it is loaded and attached.
type Type int

const (
	TypeUnsupported Type = iota
	TypeTracepoint
	TypeKprobe
	TypeLSM
)

func (t Type) String() string {
	switch t {
	case TypeTracepoint:
		return "tracepoint"
	case TypeKprobe:
		return "kprobe"
	case TypeLSM:
		return "lsm"
	}
	return "unsupported"
}

// TypeFromSpec derives the program type from a program spec. The second
// result reports a kretprobe.
func TypeFromSpec(spec *ebpf.ProgramSpec) (Type, bool) {
	switch spec.Type {
	case ebpf.TracePoint:
		return TypeTracepoint, false
	case ebpf.Kprobe:
		return TypeKprobe, strings.HasPrefix(spec.SectionName, "kretprobe/")
	case ebpf.LSM:
		return TypeLSM, false
	}
	return TypeUnsupported, false
}

func Builder(name, label string, ty Type) *Program {
	return &Program{
		Name:      name,
		Label:     label,
		Type:      ty,
		Enabled:   true,
		LoadState: Discovered,
	}
}

// Program represents a BPF program of the probe image.
type Program struct {
	// Name is the program (function) name in the image.
	Name string
	// Label is the section the program is placed in.
	Label string
	// Attach is the attachment point, e.g. the tracepoint or kernel
	// function name.
	Attach string
	// Category is the tracepoint group, e.g. raw_syscalls.
	Category string

	Type Type
	// RetProbe indicates whether a kprobe is a kretprobe.
	RetProbe bool
	Enabled  bool

	LoadState State

	Spec *ebpf.ProgramSpec

	prog *ebpf.Program
	// unloader for the program. nil if not attached.
	unloader unloader.Unloader
}

func (p *Program) SetRetProbe(ret bool) *Program {
	p.RetProbe = ret
	return p
}

func (p *Program) SetAttach(category, attach string) *Program {
	p.Category = category
	p.Attach = attach
	return p
}

func (p *Program) SetSpec(spec *ebpf.ProgramSpec) *Program {
	p.Spec = spec
	return p
}

func (p *Program) String() string {
	if p.Category != "" && p.Type == TypeTracepoint {
		return fmt.Sprintf("%s (%s %s/%s)", p.Name, p.Type, p.Category, p.Attach)
	}
	return fmt.Sprintf("%s (%s %s)", p.Name, p.Type, p.Attach)
}

// Unload detaches and closes everything held for the program. It is a
// no-op for programs that were never loaded.
func (p *Program) Unload() error {
	u := p.unloader
	if u == nil && p.prog != nil {
		u = unloader.ProgUnloader{Prog: p.prog}
	}
	if p.LoadState.IsLoaded() {
		p.LoadState = Unloaded
	}
	p.unloader = nil
	p.prog = nil

	if u == nil {
		return nil
	}
	if err := u.Unload(); err != nil {
		return &Error{Program: p.Name, Op: "unload", Err: err}
	}
	return nil
}
