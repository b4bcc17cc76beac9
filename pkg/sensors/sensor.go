// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package sensors

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/btf"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pidtrace/pidtrace/pkg/elf"
	"github.com/pidtrace/pidtrace/pkg/logger"
	"github.com/pidtrace/pidtrace/pkg/logger/logfields"
	"github.com/pidtrace/pidtrace/pkg/metrics/probemetrics"
	"github.com/pidtrace/pidtrace/pkg/sensors/program"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Options select which programs of an image are enabled.
type Options struct {
	// Disabled names programs that must not be loaded.
	Disabled mapset.Set[string]
	// HasLSM reports BPF LSM support. LSM programs are disabled when it
	// returns false. nil leaves them enabled.
	HasLSM func() bool
	// Verbose is passed to the kernel backend for verifier logs.
	Verbose int
}

// Sensor is the set of programs of one probe image.
type Sensor struct {
	Name  string
	Progs []*program.Program

	backend program.Backend
	maps    *program.KernelBackend
	log     logrus.FieldLogger
}

// Discover builds a program descriptor for every program spec. Attach
// points come from attach, programs missing from it stay unresolved.
func Discover(specs map[string]*ebpf.ProgramSpec, attach map[string]elf.AttachInfo, opts Options) []*program.Program {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	progs := make([]*program.Program, 0, len(names))
	for _, name := range names {
		spec := specs[name]
		ty, ret := program.TypeFromSpec(spec)
		p := program.Builder(name, spec.SectionName, ty).SetRetProbe(ret).SetSpec(spec)
		if info, ok := attach[name]; ok {
			p.SetAttach(info.Category, info.AttachPoint)
		}
		if opts.Disabled != nil && opts.Disabled.Contains(name) {
			p.Enabled = false
		}
		if ty == program.TypeLSM && opts.HasLSM != nil && !opts.HasLSM() {
			p.Enabled = false
		}
		progs = append(progs, p)
	}
	return progs
}

// New returns a sensor over already discovered programs.
func New(name string, progs []*program.Program, backend program.Backend) *Sensor {
	return &Sensor{
		Name:    name,
		Progs:   progs,
		backend: backend,
		log:     logger.GetLogger().WithField("sensor", name),
	}
}

// NewFromImage parses a compiled probe image, creates its maps in the
// kernel and resolves the attach point of every program.
func NewFromImage(name string, image []byte, opts Options) (*Sensor, error) {
	spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("loading collection spec failed: %w", err)
	}

	names := make([]string, 0, len(spec.Programs))
	for n := range spec.Programs {
		names = append(names, n)
	}
	attach, err := elf.ResolveAttachInfo(image, names)
	if err != nil {
		return nil, err
	}

	kb, err := program.NewKernelBackend(spec, opts.Verbose)
	if err != nil {
		return nil, err
	}

	s := New(name, Discover(spec.Programs, attach, opts), kb)
	s.maps = kb
	return s, nil
}

// Program returns the program called name.
func (s *Sensor) Program(name string) (*program.Program, error) {
	for _, p := range s.Progs {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, &program.Error{Program: name, Op: "lookup", Err: program.ErrProgramNotFound}
}

// Map returns a map shared by the programs of the sensor.
func (s *Sensor) Map(name string) (*ebpf.Map, error) {
	if s.maps == nil {
		return nil, fmt.Errorf("sensor %s has no kernel maps", s.Name)
	}
	m, ok := s.maps.Map(name)
	if !ok {
		return nil, fmt.Errorf("map %s not found in sensor %s", name, s.Name)
	}
	return m, nil
}

// Load loads and attaches every program. A failing program is logged
// and does not stop the others; all failures are returned together.
// Programs that are disabled are skipped without error.
func (s *Sensor) Load(kernelTypes *btf.Spec) error {
	var errs error
	for _, p := range s.Progs {
		log := s.log.WithFields(logrus.Fields{
			logfields.Program: p.Name,
			logfields.Section: p.Label,
			logfields.Type:    p.Type,
		})

		err := program.LoadAndAttach(s.backend, p, kernelTypes)
		switch {
		case err == nil:
			log.WithField(logfields.Attach, p.Attach).Info("Probe attached")
		case errors.Is(err, program.ErrProgramDisabled):
			log.Info("Probe disabled, skipping")
		default:
			var perr *program.Error
			op := "load"
			if errors.As(err, &perr) {
				op = perr.Op
			}
			probemetrics.ErrorsInc(p.Name, op)
			log.WithError(err).Warn("Probe failed")
			errs = multierr.Append(errs, err)
		}
		probemetrics.SetAttached(p.Name, p.LoadState == program.Attached)
	}
	return errs
}

// Attached returns the programs currently attached.
func (s *Sensor) Attached() []*program.Program {
	var out []*program.Program
	for _, p := range s.Progs {
		if p.LoadState == program.Attached {
			out = append(out, p)
		}
	}
	return out
}

// Unload tears down every program, then the shared maps.
func (s *Sensor) Unload() error {
	var errs error
	for _, p := range s.Progs {
		if err := p.Unload(); err != nil {
			errs = multierr.Append(errs, err)
		}
		probemetrics.SetAttached(p.Name, false)
	}
	if s.maps != nil {
		errs = multierr.Append(errs, s.maps.Close())
	}
	return errs
}
