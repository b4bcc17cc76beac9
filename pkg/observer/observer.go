// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package observer

import (
	"context"
	"errors"
	"time"

	"github.com/pidtrace/pidtrace/pkg/api/tracingapi"
	"github.com/pidtrace/pidtrace/pkg/defaults"
	"github.com/pidtrace/pidtrace/pkg/logger"
	"github.com/pidtrace/pidtrace/pkg/logger/logfields"
	"github.com/pidtrace/pidtrace/pkg/metrics/eventmetrics"
	"github.com/pidtrace/pidtrace/pkg/metrics/ringbufmetrics"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ErrSourceClosed is returned by a Source that will not yield frames
// anymore.
var ErrSourceClosed = errors.New("event source closed")

// Source yields raw ring buffer frames. Next must not block: it returns
// nil and no error when no frame is available.
type Source interface {
	Next() ([]byte, error)
}

// dropCounter is implemented by sources that know how many frames
// producers failed to submit.
type dropCounter interface {
	Dropped() uint64
}

type Listener interface {
	Notify(ev tracingapi.Event) error
	Close() error
}

type Options struct {
	// PollInterval is the time between two polls of the source.
	PollInterval time.Duration
	// PollBatch is the maximum number of frames taken per poll.
	PollBatch int
}

// Observer drains a Source, decodes every frame and hands the events to
// its listeners. All work happens on the goroutine calling Start.
type Observer struct {
	source    Source
	interval  time.Duration
	batch     int
	listeners map[Listener]struct{}
	log       logrus.FieldLogger

	recvCntr    atomic.Uint64
	unknownCntr atomic.Uint64
	decodeCntr  atomic.Uint64
	errorCntr   atomic.Uint64
}

func NewObserver(source Source, opts Options) *Observer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.DefaultPollInterval
	}
	if opts.PollBatch <= 0 {
		opts.PollBatch = defaults.DefaultPollBatch
	}
	return &Observer{
		source:    source,
		interval:  opts.PollInterval,
		batch:     opts.PollBatch,
		listeners: make(map[Listener]struct{}),
		log:       logger.WithSubsys("observer"),
	}
}

func (k *Observer) AddListener(listener Listener) {
	k.log.WithField("listener", listener).Debug("Add listener")
	k.listeners[listener] = struct{}{}
}

func (k *Observer) RemoveListener(listener Listener) {
	k.log.WithField("listener", listener).Debug("Delete listener")
	delete(k.listeners, listener)
	if err := listener.Close(); err != nil {
		k.log.WithError(err).Warn("failed to close listener")
	}
}

func (k *Observer) observerListeners(ev tracingapi.Event) {
	for listener := range k.listeners {
		if err := listener.Notify(ev); err != nil {
			k.log.WithError(err).Debug("Write failure removing Listener")
			k.RemoveListener(listener)
		}
	}
}

func (k *Observer) receiveEvent(frame []byte) {
	k.recvCntr.Inc()
	ringbufmetrics.ReceivedSet(float64(k.recvCntr.Load()))

	ev, err := tracingapi.Decode(frame)
	if err != nil {
		var unknown *tracingapi.UnknownKindError
		if errors.As(err, &unknown) {
			k.unknownCntr.Inc()
			eventmetrics.UnknownEvents.Inc()
			k.log.WithFields(logrus.Fields{
				logfields.Kind: uint16(unknown.Kind),
				logfields.Len:  unknown.Len,
			}).Warn("Unknown event kind")
			return
		}
		k.decodeCntr.Inc()
		eventmetrics.DecodeErrors.Inc()
		k.log.WithError(err).WithField(logfields.Len, len(frame)).Warn("Failed to decode event")
		return
	}

	eventmetrics.GetProcessedInc(ev.EventHeader().Kind)
	k.observerListeners(ev)
}

// poll takes up to k.batch frames from the source.
func (k *Observer) poll() error {
	defer func() {
		if d, ok := k.source.(dropCounter); ok {
			ringbufmetrics.LostSet(float64(d.Dropped()))
		}
	}()

	for i := 0; i < k.batch; i++ {
		frame, err := k.source.Next()
		if err != nil {
			if errors.Is(err, ErrSourceClosed) {
				return err
			}
			k.errorCntr.Inc()
			ringbufmetrics.ErrorsSet(float64(k.errorCntr.Load()))
			k.log.WithError(err).Warn("Reading events failed")
			return nil
		}
		if frame == nil {
			return nil
		}
		k.receiveEvent(frame)
	}
	return nil
}

// Start polls the source every poll interval until ctx is done. A
// cancelled context always wins over a pending tick. It returns nil on
// cancellation and when the source is closed.
func (k *Observer) Start(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.log.WithField("interval", k.interval).Info("Listening for events...")
	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			if err := k.poll(); err != nil {
				k.log.WithError(err).Info("Event source closed, stopping")
				return nil
			}
		}
	}
}

// Close closes every listener.
func (k *Observer) Close() {
	for listener := range k.listeners {
		k.RemoveListener(listener)
	}
}

type Stats struct {
	Received uint64
	Unknown  uint64
	Decode   uint64
	Errors   uint64
}

func (k *Observer) Stats() Stats {
	return Stats{
		Received: k.recvCntr.Load(),
		Unknown:  k.unknownCntr.Load(),
		Decode:   k.decodeCntr.Load(),
		Errors:   k.errorCntr.Load(),
	}
}

func (k *Observer) PrintStats() {
	s := k.Stats()
	k.log.WithFields(logrus.Fields{
		"received":      s.Received,
		"unknown":       s.Unknown,
		"decode_errors": s.Decode,
		"read_errors":   s.Errors,
	}).Info("Observer events statistics")
}
