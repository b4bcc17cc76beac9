// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package config

import (
	"net/http/httptest"
	"testing"

	"github.com/pidtrace/pidtrace/pkg/api/tracingapi"
	"github.com/pidtrace/pidtrace/pkg/metrics"
	"github.com/pidtrace/pidtrace/pkg/metrics/eventmetrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { InitAllMetrics(reg) })

	eventmetrics.GetProcessedInc(tracingapi.EventKindSysMmap)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `pidtrace_events_total{kind="SysMmap"} 1`)
	assert.Contains(t, body, `pidtrace_events_total{kind="SysEnter"} 0`)
	assert.Contains(t, body, "pidtrace_ringbuf_events_received")
	assert.Contains(t, body, "pidtrace_export_events_total")
	assert.Contains(t, body, "pidtrace_build_info")
}
