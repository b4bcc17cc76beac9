// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopulateLogOpts(t *testing.T) {
	o := LogOptions{}
	PopulateLogOpts(o, "debug", "JSON")
	assert.Equal(t, LogOptions{levelOpt: "debug", formatOpt: "json"}, o)

	o = LogOptions{}
	PopulateLogOpts(o, "loud", "xml")
	assert.Empty(t, o)
}

func TestSetupLogging(t *testing.T) {
	defer func() {
		DefaultLogger = InitializeDefaultLogger()
	}()

	require.NoError(t, SetupLogging(LogOptions{levelOpt: "warn"}, false))
	assert.Equal(t, logrus.WarnLevel, GetLogLevel())

	require.NoError(t, SetupLogging(LogOptions{levelOpt: "warn"}, true))
	assert.Equal(t, logrus.DebugLevel, GetLogLevel())

	require.Error(t, SetupLogging(LogOptions{formatOpt: "xml"}, false))
}

func TestWithSubsys(t *testing.T) {
	defer func() {
		DefaultLogger = InitializeDefaultLogger()
	}()

	var buf bytes.Buffer
	require.NoError(t, SetupLogging(LogOptions{formatOpt: "json"}, false))
	SetOutput(&buf)

	WithSubsys("observer").Info("hello")
	assert.Contains(t, buf.String(), `"subsys":"observer"`)
}
