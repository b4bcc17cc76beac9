// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package probes

// Helpers are the kernel helpers the probes call.
type Helpers interface {
	GetCurrentPidTgid() uint64
	KtimeGetNs() uint64
	// ProbeReadUser copies len(dst) bytes from user address addr.
	ProbeReadUser(dst []byte, addr uint64) error
}

// TracePointContext is the raw record a tracepoint program receives.
type TracePointContext interface {
	// ReadAt returns n bytes at off, or false when the range is outside
	// the record.
	ReadAt(off, n int) ([]byte, bool)
}

// RawTracePoint is a tracepoint record held in memory.
type RawTracePoint []byte

func (r RawTracePoint) ReadAt(off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(r) || n > len(r)-off {
		return nil, false
	}
	return r[off : off+n], true
}

// ProbeContext exposes the function arguments of a kprobe.
type ProbeContext interface {
	Arg(n int) (uint64, bool)
}

// Args are the argument registers of a probed call.
type Args []uint64

func (a Args) Arg(n int) (uint64, bool) {
	if n < 0 || n >= len(a) {
		return 0, false
	}
	return a[n], true
}
