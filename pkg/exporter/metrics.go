// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package exporter

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pidtrace/pidtrace/pkg/metrics/consts"
)

var (
	eventsExportedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: consts.MetricsNamespace,
		Name:      "export_events_total",
		Help:      "Total number of events exported",
	})

	eventsExportedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: consts.MetricsNamespace,
		Name:      "export_bytes_total",
		Help:      "Number of bytes exported for events",
	})

	eventsExportTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: consts.MetricsNamespace,
		Name:      "export_last_event_timestamp",
		Help:      "Timestamp of the most recent event to be exported",
	})

	rateLimitDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: consts.MetricsNamespace,
		Name:      "export_ratelimit_events_dropped_total",
		Help:      "Number of events dropped on export due to rate limiting",
	})
)

func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(
		eventsExportedTotal,
		eventsExportedBytesTotal,
		eventsExportTimestamp,
		rateLimitDropped,
	)
}

type byteCounterWriter struct {
	io.Writer
	bytesWritten prometheus.Counter
}

func (w byteCounterWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	w.bytesWritten.Add(float64(n))
	return n, err
}

func NewExportedBytesTotalWriter(w io.Writer) io.Writer {
	return byteCounterWriter{Writer: w, bytesWritten: eventsExportedBytesTotal}
}
