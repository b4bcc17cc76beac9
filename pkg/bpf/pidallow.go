// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package bpf

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
)

const PidAllowMapName = "pid_allow"

// Map is the subset of *ebpf.Map used for hash maps.
type Map interface {
	Put(key, value interface{}) error
	Lookup(key, valueOut interface{}) error
	Delete(key interface{}) error
}

// PidAllowMap controls which processes the probes report on. Only the
// presence of a pid matters, the flag is informational.
type PidAllowMap struct {
	m Map
}

func NewPidAllowMap(m Map) *PidAllowMap {
	return &PidAllowMap{m: m}
}

func (p *PidAllowMap) Insert(pid uint32, flag uint8) error {
	if err := p.m.Put(pid, flag); err != nil {
		return fmt.Errorf("failed to allow pid %d: %w", pid, err)
	}
	return nil
}

// Delete removes pid. Removing a pid that is not present is not an error.
func (p *PidAllowMap) Delete(pid uint32) error {
	err := p.m.Delete(pid)
	if err != nil && !errors.Is(err, ebpf.ErrKeyNotExist) {
		return fmt.Errorf("failed to remove pid %d: %w", pid, err)
	}
	return nil
}

func (p *PidAllowMap) Contains(pid uint32) (bool, error) {
	var flag uint8
	err := p.m.Lookup(pid, &flag)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ebpf.ErrKeyNotExist):
		return false, nil
	}
	return false, fmt.Errorf("failed to look up pid %d: %w", pid, err)
}
