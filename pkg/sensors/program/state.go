// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package program

// State is the lifecycle state of a probe.
//
//	Discovered -> Loaded -> Attached -> Unloaded
//	Discovered -> Disabled
type State int

const (
	Discovered State = iota
	Disabled
	Loaded
	Attached
	Unloaded
)

var stateStrings = [...]string{
	Discovered: "discovered",
	Disabled:   "disabled",
	Loaded:     "loaded",
	Attached:   "attached",
	Unloaded:   "unloaded",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateStrings) {
		return stateStrings[s]
	}
	return "unknown"
}

func (s State) IsLoaded() bool {
	return s == Loaded || s == Attached
}
