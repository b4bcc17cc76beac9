// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package elf

import (
	"debug/elf"
	"fmt"
	"io"
)

type SafeELFFile struct {
	*elf.File
}

func recoverELF(safe **SafeELFFile, err *error) {
	r := recover()
	if r == nil {
		return
	}
	*safe = nil
	*err = fmt.Errorf("reading ELF file panicked: %s", r)
}

// NewSafeELFFile reads an ELF safely.
//
// Any panic during parsing is turned into an error, debug/elf still has
// open bugs that panic on malformed input.
func NewSafeELFFile(r io.ReaderAt) (safe *SafeELFFile, err error) {
	defer recoverELF(&safe, &err)

	file, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	return &SafeELFFile{file}, nil
}

// OpenSafeELFFile works like NewSafeELFFile on the file at path.
// safe.Close closes the underlying file.
func OpenSafeELFFile(path string) (safe *SafeELFFile, err error) {
	defer recoverELF(&safe, &err)

	file, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	return &SafeELFFile{file}, nil
}

// Symbols returns the symbol table, converting panics into errors.
func (se *SafeELFFile) Symbols() (syms []elf.Symbol, err error) {
	defer func() {
		if r := recover(); r != nil {
			syms = nil
			err = fmt.Errorf("reading ELF symbols panicked: %s", r)
		}
	}()

	syms, err = se.File.Symbols()
	if err == elf.ErrNoSymbols {
		return nil, nil
	}
	return syms, err
}

// SectionOf returns the section holding sym, or nil for undefined,
// absolute and common symbols.
func (se *SafeELFFile) SectionOf(sym elf.Symbol) *elf.Section {
	if sym.Section == elf.SHN_UNDEF || sym.Section >= elf.SHN_LORESERVE {
		return nil
	}
	idx := int(sym.Section)
	if idx >= len(se.Sections) {
		return nil
	}
	return se.Sections[idx]
}

// SectionsByName returns all sections in the file with the specified section name.
func (se *SafeELFFile) SectionsByName(name string) []*elf.Section {
	sections := make([]*elf.Section, 0, 1)
	for _, section := range se.Sections {
		if section.Name == name {
			sections = append(sections, section)
		}
	}
	return sections
}
