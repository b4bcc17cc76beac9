// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package elf

import (
	"bytes"
	"debug/elf"
	"fmt"
	"sort"
	"strings"
)

// AttachInfo is what a program's section label says about where it
// attaches, e.g. "tracepoint/raw_syscalls/sys_enter" gives category
// "raw_syscalls" and attach point "sys_enter".
type AttachInfo struct {
	Section     string
	Category    string
	AttachPoint string
}

// ParseSection splits a section label into its attach information: the
// attach point is the last "/" component and the category the one
// before it, if any.
func ParseSection(section string) AttachInfo {
	info := AttachInfo{Section: section}
	parts := strings.Split(section, "/")
	info.AttachPoint = parts[len(parts)-1]
	if len(parts) >= 2 {
		info.Category = parts[len(parts)-2]
	}
	return info
}

// SymbolSections maps every defined symbol of the image to the name of
// the section it is placed in.
func SymbolSections(image []byte) (map[string]string, error) {
	file, err := NewSafeELFFile(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF image: %w", err)
	}
	defer file.Close()

	syms, err := file.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read ELF symbols: %w", err)
	}

	out := make(map[string]string, len(syms))
	for _, sym := range syms {
		if sym.Name == "" || elf.ST_TYPE(sym.Info) == elf.STT_SECTION {
			continue
		}
		sec := file.SectionOf(sym)
		if sec == nil {
			continue
		}
		out[sym.Name] = sec.Name
	}
	return out, nil
}

// ResolveAttachInfo resolves the attach information of the named
// programs. Names without a symbol in the image are absent from the
// result.
func ResolveAttachInfo(image []byte, names []string) (map[string]AttachInfo, error) {
	sections, err := SymbolSections(image)
	if err != nil {
		return nil, err
	}
	out := make(map[string]AttachInfo, len(names))
	for _, name := range names {
		if sec, ok := sections[name]; ok {
			out[name] = ParseSection(sec)
		}
	}
	return out, nil
}

// ProgramSymbol is a function symbol together with its attach information.
type ProgramSymbol struct {
	Name string
	AttachInfo
}

// ProgramSymbols lists the function symbols placed in sections that
// look like program sections, sorted by name.
func ProgramSymbols(image []byte) ([]ProgramSymbol, error) {
	file, err := NewSafeELFFile(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF image: %w", err)
	}
	defer file.Close()

	syms, err := file.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read ELF symbols: %w", err)
	}

	var progs []ProgramSymbol
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		sec := file.SectionOf(sym)
		if sec == nil || sec.Flags&elf.SHF_EXECINSTR == 0 || !strings.Contains(sec.Name, "/") {
			continue
		}
		progs = append(progs, ProgramSymbol{Name: sym.Name, AttachInfo: ParseSection(sec.Name)})
	}
	sort.Slice(progs, func(i, j int) bool { return progs[i].Name < progs[j].Name })
	return progs, nil
}
