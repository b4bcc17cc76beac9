// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

// Package probes mirrors the probe programs in bpf/process/bpf_pidtrace.c.
//
// Every probe body is bounded and allocation free. Context reads go
// through ReadAt and Arg which report failure instead of faulting, and
// every failure path returns without emitting. Kernel helpers, maps and
// the ring buffer are interfaces so the same bodies run against the
// in-process ring buffer in tests.
//
// The C sources are authoritative for record layout. layout_test.go
// checks the offsets and sizes here against their _Static_assert lines.
package probes
