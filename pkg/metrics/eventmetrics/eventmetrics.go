// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package eventmetrics

import (
	"github.com/pidtrace/pidtrace/pkg/api/tracingapi"
	"github.com/pidtrace/pidtrace/pkg/metrics/consts"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   consts.MetricsNamespace,
		Name:        "events_total",
		Help:        "The total number of decoded pidtrace events.",
		ConstLabels: nil,
	}, []string{"kind"})
	UnknownEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   consts.MetricsNamespace,
		Name:        "unknown_events_total",
		Help:        "The total number of frames with an unknown event kind.",
		ConstLabels: nil,
	})
	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   consts.MetricsNamespace,
		Name:        "decode_errors_total",
		Help:        "The total number of frames that could not be decoded.",
		ConstLabels: nil,
	})
)

func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(EventsProcessed)
	registry.MustRegister(UnknownEvents)
	registry.MustRegister(DecodeErrors)

	for _, kind := range []tracingapi.EventKind{
		tracingapi.EventKindSysEnter,
		tracingapi.EventKindSysMmap,
		tracingapi.EventKindTcpConn,
	} {
		EventsProcessed.WithLabelValues(kind.String()).Add(0)
	}
}

func GetProcessedInc(kind tracingapi.EventKind) {
	EventsProcessed.WithLabelValues(kind.String()).Inc()
}
