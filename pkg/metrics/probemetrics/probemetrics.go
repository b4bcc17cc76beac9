// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package probemetrics

import (
	"github.com/pidtrace/pidtrace/pkg/metrics/consts"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProbeAttached = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: consts.MetricsNamespace,
		Name:      "probe_attached",
		Help:      "Whether a probe is attached (1) or not (0).",
	}, []string{"probe"})
	ProbeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: consts.MetricsNamespace,
		Name:      "probe_errors_total",
		Help:      "The total number of probe lifecycle failures.",
	}, []string{"probe", "op"})
)

func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(ProbeAttached)
	registry.MustRegister(ProbeErrors)
}

func SetAttached(probe string, attached bool) {
	v := 0.0
	if attached {
		v = 1
	}
	ProbeAttached.WithLabelValues(probe).Set(v)
}

func ErrorsInc(probe, op string) {
	ProbeErrors.WithLabelValues(probe, op).Inc()
}
