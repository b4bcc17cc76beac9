// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package exporter

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/pidtrace/pidtrace/pkg/api/tracingapi"
	"github.com/pidtrace/pidtrace/pkg/encoder"
	"github.com/pidtrace/pidtrace/pkg/ktime"
	"github.com/pidtrace/pidtrace/pkg/logger"
	"github.com/pidtrace/pidtrace/pkg/logger/logfields"
	"github.com/pidtrace/pidtrace/pkg/ratelimit"
)

// Exporter writes events as JSON lines. It is registered as an observer
// listener.
type Exporter struct {
	mu          sync.Mutex
	encoder     encoder.EventEncoder
	info        *json.Encoder
	closer      io.Closer
	rateLimiter *ratelimit.RateLimiter
}

// NewExporter exports to w. Exported bytes are counted before they reach
// w. rateLimiter may be nil.
func NewExporter(w io.WriteCloser, rateLimiter *ratelimit.RateLimiter) *Exporter {
	counted := NewExportedBytesTotalWriter(w)
	return &Exporter{
		encoder:     encoder.NewJSONEncoder(counted),
		info:        json.NewEncoder(counted),
		closer:      w,
		rateLimiter: rateLimiter,
	}
}

// InfoEncoder is the encoder rate limit reports are written with, so they
// are interleaved with the exported events.
func (e *Exporter) InfoEncoder() ratelimit.InfoEncoder {
	return lockedEncoder{e}
}

type lockedEncoder struct{ e *Exporter }

func (l lockedEncoder) Encode(v any) error {
	l.e.mu.Lock()
	defer l.e.mu.Unlock()
	return l.e.info.Encode(v)
}

// SetRateLimiter installs r. It must be called before events are sent.
func (e *Exporter) SetRateLimiter(r *ratelimit.RateLimiter) {
	e.rateLimiter = r
}

// Notify implements observer.Listener. Encoding failures are logged and
// do not remove the exporter from the observer.
func (e *Exporter) Notify(ev tracingapi.Event) error {
	if e.rateLimiter != nil && !e.rateLimiter.Allow() {
		e.rateLimiter.Drop()
		rateLimitDropped.Inc()
		return nil
	}

	e.mu.Lock()
	err := e.encoder.Encode(ev)
	e.mu.Unlock()
	if err != nil {
		logger.GetLogger().WithField(logfields.Error, err).Warn("Failed to JSON encode")
		return nil
	}
	eventsExportedTotal.Inc()
	eventsExportTimestamp.Set(float64(ktime.ToTime(ev.EventHeader().Ktime).Unix()))
	return nil
}

func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closer.Close()
}
