// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package bpf

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	ebtf "github.com/cilium/ebpf/btf"
	"github.com/cilium/ebpf/features"
	"github.com/cilium/ebpf/link"
	"github.com/pidtrace/pidtrace/pkg/logger"
)

const securityLSMFile = "/sys/kernel/security/lsm"

type Feature struct {
	init     sync.Once
	detected bool
}

func (f *Feature) detect(fn func() bool) bool {
	f.init.Do(func() {
		f.detected = fn()
	})
	return f.detected
}

var (
	ringbuf    Feature
	tracepoint Feature
	kprobe     Feature
	lsm        Feature
)

func HasRingBuf() bool {
	return ringbuf.detect(func() bool {
		return features.HaveMapType(ebpf.RingBuf) == nil
	})
}

func HasTracepointPrograms() bool {
	return tracepoint.detect(func() bool {
		return features.HaveProgramType(ebpf.TracePoint) == nil
	})
}

func HasKprobePrograms() bool {
	return kprobe.detect(func() bool {
		return features.HaveProgramType(ebpf.Kprobe) == nil
	})
}

// lsmEnabled reports whether the bpf LSM is in the active LSM list. A
// BPF LSM program can be loaded without it, but it never runs.
func lsmEnabled(list string) bool {
	for _, name := range strings.Split(strings.TrimSpace(list), ",") {
		if name == "bpf" {
			return true
		}
	}
	return false
}

func detectLSM() bool {
	if features.HaveProgramType(ebpf.LSM) != nil {
		return false
	}
	b, err := os.ReadFile(securityLSMFile)
	if err != nil {
		logger.GetLogger().WithError(err).Debugf("failed to read %s", securityLSMFile)
		return false
	}
	if !lsmEnabled(string(b)) {
		return false
	}

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name: "probe_lsm_file_open",
		Type: ebpf.LSM,
		Instructions: asm.Instructions{
			asm.Mov.Imm(asm.R0, 0),
			asm.Return(),
		},
		AttachTo:   "file_open",
		AttachType: ebpf.AttachLSMMac,
		License:    "Dual BSD/GPL",
	})
	if err != nil {
		logger.GetLogger().WithError(err).Debug("failed to load LSM probe")
		return false
	}
	defer prog.Close()

	l, err := link.AttachLSM(link.LSMOptions{Program: prog})
	if err != nil {
		logger.GetLogger().WithError(err).Debug("failed to attach LSM probe")
		return false
	}
	l.Close()
	return true
}

func HasLSMPrograms() bool {
	return lsm.detect(detectLSM)
}

func LogFeatures() string {
	// every result is cached, so the kernel spec can go
	defer ebtf.FlushKernelSpec()
	return fmt.Sprintf("ringbuf: %t, tracepoint: %t, kprobe: %t, lsm: %t",
		HasRingBuf(), HasTracepointPrograms(), HasKprobePrograms(), HasLSMPrograms())
}
