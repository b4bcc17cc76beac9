// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package bpf

import "github.com/cilium/ebpf/rlimit"

// ConfigureResourceLimits lifts RLIMIT_MEMLOCK on kernels that still
// charge BPF memory to it.
func ConfigureResourceLimits() error {
	return rlimit.RemoveMemlock()
}
