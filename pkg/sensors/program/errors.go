// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package program

import (
	"errors"
	"fmt"
)

var (
	ErrProgramNotFound           = errors.New("program not found")
	ErrAttachPointMissing        = errors.New("attach point missing")
	ErrTracepointCategoryMissing = errors.New("tracepoint category missing")
	ErrProgramDisabled           = errors.New("program is disabled")
	ErrProgramNotLoaded          = errors.New("program is not loaded")
	ErrUnsupportedProgramType    = errors.New("unsupported program type")
	ErrKernelTypesMissing        = errors.New("kernel BTF required")
)

// Error is a lifecycle failure of a single program.
type Error struct {
	Program string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Program, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
