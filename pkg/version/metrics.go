// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package version

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pidtrace/pidtrace/pkg/metrics/consts"
)

// buildInfoCollector exposes a constant build_info gauge.
type buildInfoCollector struct {
	self prometheus.Metric
}

// Describe implements Collector.
func (b *buildInfoCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- b.self.Desc()
}

// Collect implements Collector.
func (b *buildInfoCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- b.self
}

func NewBuildInfoCollector() prometheus.Collector {
	buildInfo := ReadBuildInfo()
	return &buildInfoCollector{
		prometheus.MustNewConstMetric(
			prometheus.NewDesc(
				prometheus.BuildFQName(consts.MetricsNamespace, "", "build_info"),
				"Build information about pidtrace",
				nil,
				prometheus.Labels{
					"version":    Version,
					"go_version": buildInfo.GoVersion,
					"commit":     buildInfo.Commit,
					"time":       buildInfo.Time,
					"modified":   buildInfo.Modified,
				},
			),
			prometheus.GaugeValue,
			1),
	}
}
