// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package config

import (
	"github.com/pidtrace/pidtrace/pkg/exporter"
	"github.com/pidtrace/pidtrace/pkg/metrics/eventmetrics"
	"github.com/pidtrace/pidtrace/pkg/metrics/probemetrics"
	"github.com/pidtrace/pidtrace/pkg/metrics/ringbufmetrics"
	"github.com/pidtrace/pidtrace/pkg/version"
	"github.com/prometheus/client_golang/prometheus"
)

func InitAllMetrics(registry *prometheus.Registry) {
	eventmetrics.InitMetrics(registry)
	probemetrics.InitMetrics(registry)
	ringbufmetrics.InitMetrics(registry)
	exporter.InitMetrics(registry)
	registry.MustRegister(version.NewBuildInfoCollector())
}
