// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package ringbufmetrics

import (
	"github.com/pidtrace/pidtrace/pkg/metrics/consts"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ringbufReceived = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: consts.MetricsNamespace,
		Name:      "ringbuf_events_received",
		Help:      "The total number of ring buffer frames received.",
	})
	ringbufLost = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: consts.MetricsNamespace,
		Name:      "ringbuf_events_lost",
		Help:      "The total number of ring buffer frames dropped by producers.",
	})
	ringbufErrors = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: consts.MetricsNamespace,
		Name:      "ringbuf_errors",
		Help:      "The total number of ring buffer read errors.",
	})
)

func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(ringbufReceived)
	registry.MustRegister(ringbufLost)
	registry.MustRegister(ringbufErrors)
}

func Received() prometheus.Gauge { return ringbufReceived }

func ReceivedSet(val float64) {
	ringbufReceived.Set(val)
}

func Lost() prometheus.Gauge { return ringbufLost }

func LostSet(val float64) {
	ringbufLost.Set(val)
}

func Errors() prometheus.Gauge { return ringbufErrors }

func ErrorsSet(val float64) {
	ringbufErrors.Set(val)
}
