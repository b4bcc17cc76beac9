// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package program

import (
	"errors"
	"strings"
	"testing"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/btf"
	"github.com/pidtrace/pidtrace/pkg/sensors/unloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("permission denied")

type attachCall struct {
	kind     string
	category string
	name     string
	ret      bool
}

type fakeBackend struct {
	failLoad   map[string]bool
	failAttach bool
	loaded     []string
	attached   []attachCall
	unloads    int
	btfSeen    map[string]*btf.Spec
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failLoad: map[string]bool{}, btfSeen: map[string]*btf.Spec{}}
}

func (f *fakeBackend) LoadProgram(p *Program, kernelTypes *btf.Spec) (*ebpf.Program, error) {
	if f.failLoad[p.Name] {
		return nil, errRejected
	}
	f.loaded = append(f.loaded, p.Name)
	f.btfSeen[p.Name] = kernelTypes
	return nil, nil
}

func (f *fakeBackend) link(c attachCall) (unloader.Unloader, error) {
	if f.failAttach {
		return nil, errRejected
	}
	f.attached = append(f.attached, c)
	return unloader.Func(func() error { f.unloads++; return nil }), nil
}

func (f *fakeBackend) AttachTracepoint(_ *ebpf.Program, category, name string) (unloader.Unloader, error) {
	return f.link(attachCall{kind: "tracepoint", category: category, name: name})
}

func (f *fakeBackend) AttachKprobe(_ *ebpf.Program, symbol string, ret bool) (unloader.Unloader, error) {
	return f.link(attachCall{kind: "kprobe", name: symbol, ret: ret})
}

func (f *fakeBackend) AttachLSM(_ *ebpf.Program) (unloader.Unloader, error) {
	return f.link(attachCall{kind: "lsm"})
}

func tracepoint(name, category, attach string) *Program {
	return Builder(name, "tracepoint/"+category+"/"+attach, TypeTracepoint).SetAttach(category, attach)
}

func TestLoadDisabled(t *testing.T) {
	b := newFakeBackend()
	p := tracepoint("sys_enter", "raw_syscalls", "sys_enter")
	p.Enabled = false

	err := Load(b, p, nil)
	require.ErrorIs(t, err, ErrProgramDisabled)
	assert.Equal(t, Disabled, p.LoadState)
	assert.Empty(t, b.loaded)
}

func TestLoadAttachPointMissing(t *testing.T) {
	b := newFakeBackend()
	p := Builder("orphan", "", TypeTracepoint)

	err := Load(b, p, nil)
	require.ErrorIs(t, err, ErrAttachPointMissing)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "orphan", perr.Program)
	assert.Equal(t, "load", perr.Op)
	assert.Equal(t, Discovered, p.LoadState)
}

func TestAttachTracepointCategoryMissing(t *testing.T) {
	b := newFakeBackend()
	p := Builder("sys_enter", "tracepoint", TypeTracepoint).SetAttach("", "sys_enter")

	require.NoError(t, Load(b, p, nil))
	err := Attach(b, p)
	require.ErrorIs(t, err, ErrTracepointCategoryMissing)
	assert.Equal(t, Loaded, p.LoadState)
	require.NoError(t, p.Unload())
	assert.Equal(t, Unloaded, p.LoadState)
}

func TestAttachNotLoaded(t *testing.T) {
	b := newFakeBackend()
	p := tracepoint("sys_enter", "raw_syscalls", "sys_enter")
	require.ErrorIs(t, Attach(b, p), ErrProgramNotLoaded)
}

func TestAttachDispatch(t *testing.T) {
	b := newFakeBackend()
	kernelTypes := &btf.Spec{}

	progs := []*Program{
		tracepoint("sys_enter", "raw_syscalls", "sys_enter"),
		Builder("enter_connect", "kprobe/__sys_connect", TypeKprobe).SetAttach("kprobe", "__sys_connect"),
		Builder("exit_connect", "kretprobe/__sys_connect", TypeKprobe).
			SetAttach("kretprobe", "__sys_connect").SetRetProbe(true),
		Builder("file_open", "lsm/file_open", TypeLSM).SetAttach("lsm", "file_open"),
	}
	for _, p := range progs {
		require.NoError(t, LoadAndAttach(b, p, kernelTypes), p.Name)
		assert.Equal(t, Attached, p.LoadState)
	}

	assert.Equal(t, []attachCall{
		{kind: "tracepoint", category: "raw_syscalls", name: "sys_enter"},
		{kind: "kprobe", name: "__sys_connect"},
		{kind: "kprobe", name: "__sys_connect", ret: true},
		{kind: "lsm"},
	}, b.attached)
	assert.Same(t, kernelTypes, b.btfSeen["file_open"])

	for _, p := range progs {
		require.NoError(t, p.Unload())
		assert.Equal(t, Unloaded, p.LoadState)
	}
	assert.Equal(t, 4, b.unloads)

	// second unload is a no-op
	require.NoError(t, progs[0].Unload())
	assert.Equal(t, 4, b.unloads)
}

func TestLoadLSMNeedsKernelTypes(t *testing.T) {
	b := newFakeBackend()
	p := Builder("file_open", "lsm/file_open", TypeLSM).SetAttach("lsm", "file_open")
	require.ErrorIs(t, Load(b, p, nil), ErrKernelTypesMissing)
}

func TestLoadUnsupported(t *testing.T) {
	b := newFakeBackend()
	p := Builder("xdp_prog", "xdp/eth0", TypeUnsupported).SetAttach("xdp", "eth0")
	require.ErrorIs(t, Load(b, p, nil), ErrUnsupportedProgramType)
}

func TestFailureIsIndependent(t *testing.T) {
	b := newFakeBackend()
	b.failLoad["a"] = true

	progs := []*Program{
		tracepoint("a", "raw_syscalls", "sys_enter"),
		tracepoint("b", "syscalls", "sys_enter_mmap"),
		Builder("c", "kprobe/__sys_connect", TypeKprobe).SetAttach("kprobe", "__sys_connect"),
	}
	var errs []error
	for _, p := range progs {
		if err := LoadAndAttach(b, p, nil); err != nil {
			errs = append(errs, err)
		}
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errRejected)
	assert.Equal(t, Discovered, progs[0].LoadState)
	assert.Equal(t, Attached, progs[1].LoadState)
	assert.Equal(t, Attached, progs[2].LoadState)
}

func TestAttachFailureKeepsLoaded(t *testing.T) {
	b := newFakeBackend()
	b.failAttach = true
	p := tracepoint("sys_enter", "raw_syscalls", "sys_enter")

	err := LoadAndAttach(b, p, nil)
	require.ErrorIs(t, err, errRejected)
	assert.True(t, strings.HasPrefix(err.Error(), "attach sys_enter"))
	assert.Equal(t, Loaded, p.LoadState)
}

func TestTypeFromSpec(t *testing.T) {
	ty, ret := TypeFromSpec(&ebpf.ProgramSpec{Type: ebpf.Kprobe, SectionName: "kretprobe/__sys_connect"})
	assert.Equal(t, TypeKprobe, ty)
	assert.True(t, ret)

	ty, ret = TypeFromSpec(&ebpf.ProgramSpec{Type: ebpf.Kprobe, SectionName: "kprobe/__sys_connect"})
	assert.Equal(t, TypeKprobe, ty)
	assert.False(t, ret)

	ty, _ = TypeFromSpec(&ebpf.ProgramSpec{Type: ebpf.TracePoint})
	assert.Equal(t, TypeTracepoint, ty)
	ty, _ = TypeFromSpec(&ebpf.ProgramSpec{Type: ebpf.LSM})
	assert.Equal(t, TypeLSM, ty)
	ty, _ = TypeFromSpec(&ebpf.ProgramSpec{Type: ebpf.XDP})
	assert.Equal(t, TypeUnsupported, ty)
}

func TestSlimVerifierError(t *testing.T) {
	short := "line1\nline2\n"
	assert.Equal(t, short, slimVerifierError(short))

	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("insn\n")
	}
	slim := slimVerifierError(sb.String())
	assert.Contains(t, slim, "\n...\n")
	assert.Less(t, strings.Count(slim, "insn"), 100)
}
