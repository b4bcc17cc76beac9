// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

// Package ringbuffer is an in-process implementation of the BPF ring
// buffer protocol. Producers reserve a contiguous record, fill it and
// commit it. A single consumer drains committed records in order.
//
// Each record is prefixed by an 8 byte header whose length word carries
// a busy bit while the producer still owns the record and a discard bit
// for records the consumer must skip.
package ringbuffer

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

const (
	HeaderSize = 8

	busyBit    uint32 = 1 << 31
	discardBit uint32 = 1 << 30
	lenMask           = ^(busyBit | discardBit)
)

var (
	ErrNoSpace     = errors.New("ring buffer: no space")
	ErrTooLarge    = errors.New("ring buffer: record larger than buffer")
	ErrInvalidSize = errors.New("ring buffer: size must be a power of two and a multiple of 8")
)

type RingBuffer struct {
	data []byte
	// hdrs holds the length word of the record starting at slot i*8.
	hdrs []atomic.Uint32
	mask uint64

	// mu serializes producers. The consumer never takes it.
	mu       sync.Mutex
	producer atomic.Uint64
	consumer atomic.Uint64

	dropped atomic.Uint64
}

// New creates a ring buffer holding size bytes of records and headers.
func New(size int) (*RingBuffer, error) {
	if size < HeaderSize || size&(size-1) != 0 || size%HeaderSize != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &RingBuffer{
		data: make([]byte, size),
		hdrs: make([]atomic.Uint32, size/HeaderSize),
		mask: uint64(size - 1),
	}, nil
}

func roundUp(n uint64) uint64 {
	return (n + HeaderSize - 1) &^ (HeaderSize - 1)
}

func (rb *RingBuffer) capacity() uint64 { return rb.mask + 1 }

// Sample is a reserved record. Exactly one of Submit or Discard must be
// called on it.
type Sample struct {
	rb   *RingBuffer
	off  uint64
	size uint32
}

// Bytes returns the record payload. It is only valid until Submit or
// Discard.
func (s *Sample) Bytes() []byte {
	start := s.off + HeaderSize
	return s.rb.data[start : start+uint64(s.size)]
}

func (s *Sample) Submit() {
	s.rb.hdrs[s.off/HeaderSize].Store(s.size)
}

func (s *Sample) Discard() {
	s.rb.hdrs[s.off/HeaderSize].Store(s.size | discardBit)
}

// Reserve claims size contiguous bytes. It fails with ErrNoSpace when the
// consumer has not freed enough room and never blocks.
func (rb *RingBuffer) Reserve(size int) (*Sample, error) {
	total := roundUp(uint64(size) + HeaderSize)
	if size < 0 || total > rb.capacity() || uint32(size)&^lenMask != 0 {
		rb.dropped.Inc()
		return nil, ErrTooLarge
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	cons := rb.consumer.Load()
	prod := rb.producer.Load()
	off := prod & rb.mask

	// Records never wrap. If the tail is too short, pad it with a
	// discarded record and start over at offset zero.
	var pad uint64
	if off+total > rb.capacity() {
		pad = rb.capacity() - off
	}
	// An empty buffer has no live data for the record to overrun, so
	// only the pad record is left in front of it.
	if cons != prod && prod+pad+total-cons > rb.capacity() {
		rb.dropped.Inc()
		return nil, ErrNoSpace
	}
	if pad > 0 {
		rb.hdrs[off/HeaderSize].Store(uint32(pad-HeaderSize) | discardBit)
		prod += pad
		off = 0
	}

	rb.hdrs[off/HeaderSize].Store(uint32(size) | busyBit)
	rb.producer.Store(prod + total)

	return &Sample{rb: rb, off: off, size: uint32(size)}, nil
}

// Output reserves, fills and commits a record in one step.
func (rb *RingBuffer) Output(b []byte) error {
	s, err := rb.Reserve(len(b))
	if err != nil {
		return err
	}
	copy(s.Bytes(), b)
	s.Submit()
	return nil
}

// Next returns a copy of the oldest committed record, or nil when no
// committed record is available. Consumption stops at the first record
// that is still busy, so records are observed in reservation order.
func (rb *RingBuffer) Next() ([]byte, error) {
	for {
		cons := rb.consumer.Load()
		if cons == rb.producer.Load() {
			return nil, nil
		}
		off := cons & rb.mask
		hdr := rb.hdrs[off/HeaderSize].Load()
		if hdr&busyBit != 0 {
			return nil, nil
		}
		size := uint64(hdr & lenMask)
		next := cons + roundUp(size+HeaderSize)
		if hdr&discardBit != 0 {
			rb.consumer.Store(next)
			continue
		}
		start := off + HeaderSize
		out := make([]byte, size)
		copy(out, rb.data[start:start+size])
		rb.consumer.Store(next)
		return out, nil
	}
}

// Pending returns the number of bytes reserved but not yet consumed.
func (rb *RingBuffer) Pending() uint64 {
	return rb.producer.Load() - rb.consumer.Load()
}

// Dropped returns how many reservations failed.
func (rb *RingBuffer) Dropped() uint64 {
	return rb.dropped.Load()
}

func (rb *RingBuffer) Size() int { return len(rb.data) }
