// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package ringbuffer

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvalidSize(t *testing.T) {
	for _, size := range []int{0, 4, 24, 100} {
		_, err := New(size)
		require.ErrorIs(t, err, ErrInvalidSize, "size %d", size)
	}
	rb, err := New(64)
	require.NoError(t, err)
	assert.Equal(t, 64, rb.Size())
}

func TestReserveSubmitNext(t *testing.T) {
	rb, err := New(256)
	require.NoError(t, err)

	s, err := rb.Reserve(5)
	require.NoError(t, err)
	copy(s.Bytes(), "hello")

	// not committed yet
	got, err := rb.Next()
	require.NoError(t, err)
	assert.Nil(t, got)

	s.Submit()
	got, err = rb.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got, err = rb.Next()
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, rb.Pending())
}

func TestConsumerStopsAtBusyRecord(t *testing.T) {
	rb, err := New(256)
	require.NoError(t, err)

	first, err := rb.Reserve(8)
	require.NoError(t, err)
	second, err := rb.Reserve(8)
	require.NoError(t, err)
	copy(second.Bytes(), "second!!")
	second.Submit()

	got, err := rb.Next()
	require.NoError(t, err)
	assert.Nil(t, got, "a later commit must not overtake a busy record")

	copy(first.Bytes(), "first!!!")
	first.Submit()

	got, _ = rb.Next()
	assert.Equal(t, []byte("first!!!"), got)
	got, _ = rb.Next()
	assert.Equal(t, []byte("second!!"), got)
}

func TestDiscardIsSkipped(t *testing.T) {
	rb, err := New(128)
	require.NoError(t, err)

	s, err := rb.Reserve(16)
	require.NoError(t, err)
	s.Discard()
	require.NoError(t, rb.Output([]byte("kept")))

	got, err := rb.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), got)
}

func TestFullBufferDropsAndRecovers(t *testing.T) {
	// 64 bytes hold two 24 byte records with their headers.
	rb, err := New(64)
	require.NoError(t, err)

	require.NoError(t, rb.Output(make([]byte, 24)))
	require.NoError(t, rb.Output(make([]byte, 24)))

	_, err = rb.Reserve(24)
	require.ErrorIs(t, err, ErrNoSpace)
	assert.Equal(t, uint64(1), rb.Dropped())

	got, err := rb.Next()
	require.NoError(t, err)
	assert.Len(t, got, 24)

	frame := []byte("abcdefghijklmnopqrstuvwx")
	require.NoError(t, rb.Output(frame))

	got, _ = rb.Next()
	assert.Len(t, got, 24)
	got, _ = rb.Next()
	assert.Equal(t, frame, got)
	got, _ = rb.Next()
	assert.Nil(t, got)
}

func TestWrapPadsTail(t *testing.T) {
	rb, err := New(64)
	require.NoError(t, err)

	// 40 bytes used, leaving a 24 byte tail.
	require.NoError(t, rb.Output(make([]byte, 32)))
	got, _ := rb.Next()
	require.Len(t, got, 32)

	// 32 byte record does not fit in the tail and wraps to offset 0.
	frame := make([]byte, 24)
	for i := range frame {
		frame[i] = byte(i)
	}
	require.NoError(t, rb.Output(frame))
	got, err = rb.Next()
	require.NoError(t, err)
	assert.Equal(t, frame, got)
	assert.Zero(t, rb.Pending())
}

func TestWrapOnEmptyBuffer(t *testing.T) {
	rb, err := New(64)
	require.NoError(t, err)

	// Leaves the buffer empty at offset 16.
	require.NoError(t, rb.Output(make([]byte, 8)))
	_, err = rb.Next()
	require.NoError(t, err)
	require.Zero(t, rb.Pending())

	// A 56 byte record does not fit in the 48 byte tail, but the buffer
	// is empty so it wraps to offset 0.
	for i := 0; i < 3; i++ {
		frame := make([]byte, 48)
		for j := range frame {
			frame[j] = byte(i + j)
		}
		require.NoError(t, rb.Output(frame), "attempt %d", i)
		got, err := rb.Next()
		require.NoError(t, err)
		assert.Equal(t, frame, got)
		assert.Zero(t, rb.Pending())
	}
	assert.Zero(t, rb.Dropped())
}

func TestWrapRefusedWhileDataPending(t *testing.T) {
	rb, err := New(64)
	require.NoError(t, err)

	require.NoError(t, rb.Output(make([]byte, 8)))
	_, err = rb.Next()
	require.NoError(t, err)
	// Occupies [16, 32) and stays unconsumed.
	require.NoError(t, rb.Output(make([]byte, 8)))

	// Wrapping would need [32, 64) for padding and [0, 56) for the
	// record, which overruns the pending one.
	_, err = rb.Reserve(48)
	require.ErrorIs(t, err, ErrNoSpace)

	got, err := rb.Next()
	require.NoError(t, err)
	assert.Len(t, got, 8)
	require.NoError(t, rb.Output(make([]byte, 48)))
}

func TestTooLarge(t *testing.T) {
	rb, err := New(64)
	require.NoError(t, err)
	_, err = rb.Reserve(64)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestConcurrentProducers(t *testing.T) {
	rb, err := New(1 << 12)
	require.NoError(t, err)

	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p uint32) {
			defer wg.Done()
			for i := uint32(0); i < perProducer; i++ {
				s, err := rb.Reserve(8)
				if err != nil {
					continue
				}
				b := s.Bytes()
				binary.LittleEndian.PutUint32(b[0:4], p)
				binary.LittleEndian.PutUint32(b[4:8], ^p)
				s.Submit()
			}
		}(uint32(p))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	received := 0
	check := func(frame []byte) {
		require.Len(t, frame, 8)
		p := binary.LittleEndian.Uint32(frame[0:4])
		require.Equal(t, ^p, binary.LittleEndian.Uint32(frame[4:8]), "torn record")
		received++
	}
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		frame, err := rb.Next()
		require.NoError(t, err)
		if frame != nil {
			check(frame)
		}
	}
	for {
		frame, _ := rb.Next()
		if frame == nil {
			break
		}
		check(frame)
	}
	assert.Equal(t, producers*perProducer, received+int(rb.Dropped()))
}
