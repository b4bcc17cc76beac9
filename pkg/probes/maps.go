// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package probes

import (
	"errors"
	"sync"

	"github.com/pidtrace/pidtrace/pkg/api/tracingapi"
	"github.com/pidtrace/pidtrace/pkg/ringbuffer"
)

const (
	PidAllowMaxEntries    = 1024
	ConnectArgsMaxEntries = 4096
	EventsSize            = 1 << 20
)

var ErrMapFull = errors.New("map full")

// HashMap is a bounded hash map with BPF_MAP_TYPE_HASH semantics: updates
// replace existing values, inserting a new key into a full map fails.
type HashMap[K comparable, V any] struct {
	mu         sync.RWMutex
	entries    map[K]V
	maxEntries int
}

func NewHashMap[K comparable, V any](maxEntries int) *HashMap[K, V] {
	return &HashMap[K, V]{
		entries:    make(map[K]V),
		maxEntries: maxEntries,
	}
}

func (m *HashMap[K, V]) Lookup(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *HashMap[K, V]) Update(key K, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok && len(m.entries) >= m.maxEntries {
		return ErrMapFull
	}
	m.entries[key] = value
	return nil
}

func (m *HashMap[K, V]) Delete(key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *HashMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

type PidAllow interface {
	Lookup(pid uint32) (uint8, bool)
}

// ConnectArgsTable correlates connect entry and exit by pid. Concurrent
// connects from threads of one process overwrite each other.
type ConnectArgsTable interface {
	Lookup(pid uint32) (tracingapi.ConnectArgs, bool)
	Update(pid uint32, args tracingapi.ConnectArgs) error
	Delete(pid uint32)
}

type EventSink interface {
	Reserve(size int) (*ringbuffer.Sample, error)
}

// Maps is the kernel shared state the probes operate on.
type Maps struct {
	PidAllow    PidAllow
	ConnectArgs ConnectArgsTable
	Events      EventSink
}

// State is an in-process instance of the shared state.
type State struct {
	PidAllow    *HashMap[uint32, uint8]
	ConnectArgs *HashMap[uint32, tracingapi.ConnectArgs]
	Events      *ringbuffer.RingBuffer
}

// NewState allocates the shared state with the limits of the BPF object
// and an events buffer of eventsSize bytes.
func NewState(eventsSize int) (*State, error) {
	events, err := ringbuffer.New(eventsSize)
	if err != nil {
		return nil, err
	}
	return &State{
		PidAllow:    NewHashMap[uint32, uint8](PidAllowMaxEntries),
		ConnectArgs: NewHashMap[uint32, tracingapi.ConnectArgs](ConnectArgsMaxEntries),
		Events:      events,
	}, nil
}

func (s *State) Maps() Maps {
	return Maps{
		PidAllow:    s.PidAllow,
		ConnectArgs: s.ConnectArgs,
		Events:      s.Events,
	}
}
