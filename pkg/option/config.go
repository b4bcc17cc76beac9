// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package option

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/pidtrace/pidtrace/pkg/defaults"
)

// Config contains all the configuration used by pidtrace.
var Config = config{
	// Initialize global defaults below.

	// ProcFS defaults to /proc.
	ProcFS:         "/proc",
	BpfLib:         defaults.DefaultPidtraceLib,
	BpfObject:      defaults.DefaultBpfObject,
	TraceSelf:      true,
	DisabledProbes: mapset.NewSet[string](),
	PollInterval:   defaults.DefaultPollInterval,
	PollBatch:      defaults.DefaultPollBatch,
	Color:          "auto",
	Timestamps:     true,
	PidFile:        defaults.DefaultPidFile,

	ExportRateLimit: defaults.DefaultExportRateLimit,

	// LogOpts contains logger parameters
	LogOpts: make(map[string]string),
}

type config struct {
	Debug     bool
	ProcFS    string
	BpfLib    string
	BpfObject string
	BTF       string
	Verbosity int

	Pids           []uint32
	TraceSelf      bool
	DisabledProbes mapset.Set[string]

	PollInterval time.Duration
	PollBatch    int

	Color      string
	Timestamps bool
	ShowComm   bool

	ExportFilename       string
	ExportFileMaxSizeMB  int
	ExportFileMaxBackups int
	ExportFileCompress   bool
	ExportRateLimit      int

	MetricsServer string
	GopsAddr      string
	PidFile       string

	LogOpts map[string]string
}
