// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package defaults

import "time"

const (
	// DefaultRunDir is the default run directory for runtime
	DefaultRunDir = "/var/run/pidtrace/"

	// Default kernel exposed BTF file path
	DefaultBTFFile = "/sys/kernel/btf/vmlinux"

	// Default location for BPF objects and BTF files
	DefaultPidtraceLib = "/var/lib/pidtrace/"

	// DefaultBpfObject is the compiled probe image inside the lib directory
	DefaultBpfObject = "bpf_pidtrace.o"

	// DefaultPidFile is where the running agent writes its pid
	DefaultPidFile = DefaultRunDir + "pidtrace.pid"

	// DefaultPollInterval is how often the consumer loop polls the ring buffer
	DefaultPollInterval = 5 * time.Millisecond

	// DefaultPollBatch is how many frames a single poll drains
	DefaultPollBatch = 1

	// DefaultEventMap is the name of the events ring buffer
	DefaultEventMap = "events"

	// DefaultConfigDir holds one file per configuration key
	DefaultConfigDir = "/etc/pidtrace/pidtrace.conf.d/"

	// DefaultExportRateLimit disables rate limiting of exported events
	DefaultExportRateLimit = -1
)
