// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package encoder

import (
	"github.com/fatih/color"
)

// Colorer holds one color per field of a compact event line.
type Colorer struct {
	Pid     *color.Color
	Syscall *color.Color
	Mmap    *color.Color
	Connect *color.Color
	Addr    *color.Color
}

func NewColorer(when ColorMode) *Colorer {
	c := &Colorer{
		Pid:     color.New(color.FgCyan),
		Syscall: color.New(color.FgBlue),
		Mmap:    color.New(color.FgMagenta),
		Connect: color.New(color.FgGreen),
		Addr:    color.New(color.FgYellow),
	}

	// color.NoColor is global and reflects whether stdout is a terminal.
	enable := when == Always || (when != Never && !color.NoColor)
	for _, v := range []*color.Color{c.Pid, c.Syscall, c.Mmap, c.Connect, c.Addr} {
		if enable {
			v.EnableColor()
		} else {
			v.DisableColor()
		}
	}
	return c
}
