// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package program

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/btf"
	"github.com/cilium/ebpf/link"
	"github.com/pidtrace/pidtrace/pkg/logger"
	"github.com/pidtrace/pidtrace/pkg/logger/logfields"
	"github.com/pidtrace/pidtrace/pkg/sensors/unloader"
	"go.uber.org/multierr"
)

// KernelBackend loads programs of one collection spec into the running
// kernel. Its maps are created once and shared by every program loaded
// through the backend.
type KernelBackend struct {
	spec *ebpf.CollectionSpec
	maps map[string]*ebpf.Map
	// Verbose controls verifier log output on load failures: 0 none,
	// 1 head and tail, 2 the full log.
	Verbose int
}

func NewKernelBackend(spec *ebpf.CollectionSpec, verbose int) (*KernelBackend, error) {
	mapsOnly := &ebpf.CollectionSpec{
		Maps:      spec.Maps,
		Programs:  map[string]*ebpf.ProgramSpec{},
		Types:     spec.Types,
		ByteOrder: spec.ByteOrder,
	}
	coll, err := ebpf.NewCollection(mapsOnly)
	if err != nil {
		return nil, fmt.Errorf("creating maps failed: %w", err)
	}
	return &KernelBackend{
		spec:    spec,
		maps:    coll.Maps,
		Verbose: verbose,
	}, nil
}

// Map returns the shared map called name.
func (k *KernelBackend) Map(name string) (*ebpf.Map, bool) {
	m, ok := k.maps[name]
	return m, ok
}

// MapNames returns the names of all shared maps, sorted.
func (k *KernelBackend) MapNames() []string {
	names := make([]string, 0, len(k.maps))
	for name := range k.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (k *KernelBackend) Close() error {
	var err error
	for name, m := range k.maps {
		err = multierr.Append(err, m.Close())
		delete(k.maps, name)
	}
	return err
}

// LoadProgram loads p from a collection holding only p.Spec, with every
// map replaced by the shared one.
func (k *KernelBackend) LoadProgram(p *Program, kernelTypes *btf.Spec) (*ebpf.Program, error) {
	if p.Spec == nil {
		return nil, ErrProgramNotFound
	}
	progSpec := p.Spec.Copy()
	if p.Type == TypeLSM {
		progSpec.AttachTo = p.Attach
	}
	spec := &ebpf.CollectionSpec{
		Maps:      k.spec.Maps,
		Programs:  map[string]*ebpf.ProgramSpec{p.Name: progSpec},
		Types:     k.spec.Types,
		ByteOrder: k.spec.ByteOrder,
	}

	opts := ebpf.CollectionOptions{
		MapReplacements: k.maps,
		Programs: ebpf.ProgramOptions{
			KernelTypes: kernelTypes,
		},
	}
	coll, err := ebpf.NewCollectionWithOptions(spec, opts)
	if err != nil {
		// Retry with the verifier log enabled so the rejection can be
		// reported.
		opts.Programs.LogLevel = ebpf.LogLevelBranch
		coll, err = ebpf.NewCollectionWithOptions(spec, opts)
		if err != nil {
			k.dumpVerifierLog(p, err)
			return nil, fmt.Errorf("opening collection for '%s' failed: %w", p.Name, err)
		}
	}
	defer coll.Close()

	prog := coll.DetachProgram(p.Name)
	if prog == nil {
		return nil, ErrProgramNotFound
	}
	return prog, nil
}

func (k *KernelBackend) dumpVerifierLog(p *Program, err error) {
	var ve *ebpf.VerifierError
	if k.Verbose == 0 || !errors.As(err, &ve) {
		return
	}
	log := logger.GetLogger().WithField(logfields.Program, p.Name)
	if k.Verbose < 2 {
		log.Info(slimVerifierError(fmt.Sprintf("%+v", ve)))
	} else {
		log.Infof("%+v", ve)
	}
}

func (k *KernelBackend) AttachTracepoint(prog *ebpf.Program, category, name string) (unloader.Unloader, error) {
	l, err := link.Tracepoint(category, name, prog, nil)
	if err != nil {
		return nil, fmt.Errorf("attaching tracepoint '%s/%s' failed: %w", category, name, err)
	}
	return unloader.LinkUnloader{Link: l}, nil
}

func (k *KernelBackend) AttachKprobe(prog *ebpf.Program, symbol string, ret bool) (unloader.Unloader, error) {
	var (
		l   link.Link
		err error
	)
	if ret {
		l, err = link.Kretprobe(symbol, prog, nil)
	} else {
		l, err = link.Kprobe(symbol, prog, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("attaching kprobe '%s' failed: %w", symbol, err)
	}
	return unloader.LinkUnloader{Link: l}, nil
}

func (k *KernelBackend) AttachLSM(prog *ebpf.Program) (unloader.Unloader, error) {
	l, err := link.AttachLSM(link.LSMOptions{Program: prog})
	if err != nil {
		return nil, fmt.Errorf("attaching lsm program failed: %w", err)
	}
	return unloader.LinkUnloader{Link: l}, nil
}

// slimVerifierError keeps only the first and last lines of a verifier log.
func slimVerifierError(errStr string) string {
	nLines := 30
	headLines := 0
	headEnd := 0

	for ; headEnd < len(errStr); headEnd++ {
		if errStr[headEnd] == '\n' {
			headLines++
			if headLines >= nLines {
				break
			}
		}
	}
	if headEnd >= len(errStr) {
		return errStr
	}

	tailStart := len(errStr) - 1
	tailLines := 0
	for ; tailStart > headEnd; tailStart-- {
		if errStr[tailStart] == '\n' {
			tailLines++
			if tailLines >= nLines {
				tailStart++
				break
			}
		}
	}

	return errStr[:headEnd] + "\n...\n" + errStr[tailStart:]
}
