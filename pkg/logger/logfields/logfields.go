// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package logfields

const (
	// LogSubsys is the field denoting the subsystem when logging
	LogSubsys = "subsys"

	// Error is the Go error
	Error = "error"

	Program  = "program"
	Section  = "section"
	Type     = "type"
	Attach   = "attach"
	Category = "category"
	State    = "state"

	Pid  = "pid"
	Kind = "kind"
	Len  = "len"

	Map  = "map"
	Path = "path"
)
