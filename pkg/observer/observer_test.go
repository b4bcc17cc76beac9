// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package observer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pidtrace/pidtrace/pkg/api/tracingapi"
	"github.com/pidtrace/pidtrace/pkg/metrics/eventmetrics"
	"github.com/pidtrace/pidtrace/pkg/ringbuffer"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []tracingapi.Event
	fail   bool
	closed bool
}

func (c *collector) Notify(ev tracingapi.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *collector) get() []tracingapi.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]tracingapi.Event(nil), c.events...)
}

type countingSource struct {
	Source
	calls int
}

func (c *countingSource) Next() ([]byte, error) {
	c.calls++
	return c.Source.Next()
}

type failingSource struct {
	err error
}

func (f failingSource) Next() ([]byte, error) { return nil, f.err }

func newRing(t *testing.T) *ringbuffer.RingBuffer {
	rb, err := ringbuffer.New(1 << 12)
	require.NoError(t, err)
	return rb
}

func output(t *testing.T, rb *ringbuffer.RingBuffer, rec tracingapi.Record) {
	require.NoError(t, rb.Output(tracingapi.Marshal(rec)))
}

func sysEnter(pid, id uint32) *tracingapi.MsgSysEnter {
	return &tracingapi.MsgSysEnter{
		Header: tracingapi.MsgHeader{Ktime: 1, Pid: pid, Kind: tracingapi.EventKindSysEnter},
		ID:     id,
	}
}

func TestObserverDeliversEvents(t *testing.T) {
	rb := newRing(t)
	obs := NewObserver(rb, Options{PollInterval: time.Millisecond, PollBatch: 4})
	c := &collector{}
	obs.AddListener(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- obs.Start(ctx) }()

	output(t, rb, sysEnter(100, 59))
	output(t, rb, &tracingapi.MsgSysMmap{
		Header: tracingapi.MsgHeader{Pid: 100, Kind: tracingapi.EventKindSysMmap},
		Args:   tracingapi.MmapArgs{Len: 4096, Prot: 3, Flags: 34, Fd: ^uint64(0)},
	})

	require.Eventually(t, func() bool { return len(c.get()) == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	events := c.get()
	assert.Equal(t, uint32(59), events[0].(*tracingapi.MsgSysEnter).ID)
	assert.Equal(t, uint64(4096), events[1].(*tracingapi.MsgSysMmap).Args.Len)
	assert.Equal(t, uint64(2), obs.Stats().Received)

	obs.Close()
	assert.True(t, c.closed)
}

func TestObserverUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	rb := newRing(t)
	obs := NewObserver(rb, Options{})
	obs.log = log
	c := &collector{}
	obs.AddListener(c)

	before := testutil.ToFloat64(eventmetrics.UnknownEvents)
	frame := make([]byte, 40)
	hdr := tracingapi.MsgHeader{Pid: 1, Kind: 99}
	hdr.MarshalTo(frame)
	require.NoError(t, rb.Output(frame))
	output(t, rb, sysEnter(1, 2))

	require.NoError(t, obs.poll())
	require.NoError(t, obs.poll())

	assert.Equal(t, before+1, testutil.ToFloat64(eventmetrics.UnknownEvents))
	assert.Contains(t, buf.String(), "Unknown event kind")
	assert.Contains(t, buf.String(), "kind=99")
	assert.Contains(t, buf.String(), "len=40")
	require.Len(t, c.get(), 1, "processing continues after an unknown kind")
	assert.Equal(t, uint64(1), obs.Stats().Unknown)
}

func TestObserverShortFrame(t *testing.T) {
	rb := newRing(t)
	obs := NewObserver(rb, Options{})
	obs.log = logrus.New()

	frame := make([]byte, 20)
	hdr := tracingapi.MsgHeader{Kind: tracingapi.EventKindSysMmap}
	hdr.MarshalTo(frame)
	require.NoError(t, rb.Output(frame))

	require.NoError(t, obs.poll())
	assert.Equal(t, uint64(1), obs.Stats().Decode)
}

func TestObserverPollBatch(t *testing.T) {
	rb := newRing(t)
	src := &countingSource{Source: rb}
	obs := NewObserver(src, Options{PollBatch: 1})
	c := &collector{}
	obs.AddListener(c)

	output(t, rb, sysEnter(1, 1))
	output(t, rb, sysEnter(1, 2))

	require.NoError(t, obs.poll())
	assert.Len(t, c.get(), 1)
	require.NoError(t, obs.poll())
	assert.Len(t, c.get(), 2)
	require.NoError(t, obs.poll())
	assert.Equal(t, 3, src.calls)
}

func TestObserverCancelledBeforeStart(t *testing.T) {
	rb := newRing(t)
	src := &countingSource{Source: rb}
	obs := NewObserver(src, Options{PollInterval: time.Millisecond})
	output(t, rb, sysEnter(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, obs.Start(ctx))
	assert.Zero(t, src.calls)
}

func TestObserverRemovesFailingListener(t *testing.T) {
	rb := newRing(t)
	obs := NewObserver(rb, Options{})
	bad := &collector{fail: true}
	good := &collector{}
	obs.AddListener(bad)
	obs.AddListener(good)

	output(t, rb, sysEnter(1, 1))
	output(t, rb, sysEnter(1, 2))
	require.NoError(t, obs.poll())
	require.NoError(t, obs.poll())

	assert.True(t, bad.closed)
	assert.Len(t, good.get(), 2)
	assert.Len(t, obs.listeners, 1)
}

func TestObserverSourceErrors(t *testing.T) {
	obs := NewObserver(failingSource{err: errors.New("EIO")}, Options{})
	obs.log = logrus.New()
	require.NoError(t, obs.poll())
	assert.Equal(t, uint64(1), obs.Stats().Errors)

	obs = NewObserver(failingSource{err: ErrSourceClosed}, Options{PollInterval: time.Millisecond})
	done := make(chan error, 1)
	go func() { done <- obs.Start(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("observer did not stop on a closed source")
	}
}

func TestLogListener(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)

	l := LogListener{Log: log}
	require.NoError(t, l.Notify(&tracingapi.MsgTcpConnect{
		Header: tracingapi.MsgHeader{Pid: 7, Kind: tracingapi.EventKindTcpConn},
		Args:   tracingapi.TcpArgs{Daddr: 0x7f000001, Dport: 80},
	}))
	assert.Contains(t, buf.String(), "dport=80")
	assert.Contains(t, buf.String(), "kind=TcpConnect")
	require.NoError(t, l.Close())
}
