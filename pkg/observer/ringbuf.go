// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package observer

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
)

// RingBufSource reads frames from a BPF_MAP_TYPE_RINGBUF map without
// blocking.
type RingBufSource struct {
	rd *ringbuf.Reader
}

func NewRingBufSource(m *ebpf.Map) (*RingBufSource, error) {
	rd, err := ringbuf.NewReader(m)
	if err != nil {
		return nil, fmt.Errorf("creating ring buffer reader failed: %w", err)
	}
	return &RingBufSource{rd: rd}, nil
}

func (s *RingBufSource) Next() ([]byte, error) {
	// A deadline in the past turns Read into a poll.
	s.rd.SetDeadline(time.Now())
	record, err := s.rd.Read()
	switch {
	case err == nil:
		return record.RawSample, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return nil, nil
	case errors.Is(err, ringbuf.ErrClosed):
		return nil, ErrSourceClosed
	}
	return nil, err
}

func (s *RingBufSource) Close() error {
	return s.rd.Close()
}
