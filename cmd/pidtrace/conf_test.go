// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace
package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pidtrace/pidtrace/pkg/option"
)

func writeDropIn(t *testing.T, dir string, options map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for k, v := range options {
		require.NoError(t, os.WriteFile(filepath.Join(dir, k), []byte(v), 0o644))
	}
}

func TestReadConfigSettings(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := t.TempDir()
	pkgDropIn := filepath.Join(root, "usr/lib/pidtrace/pidtrace.conf.d")
	confDir := filepath.Join(root, "etc/pidtrace")
	adminDropIn := filepath.Join(confDir, "pidtrace.conf.d")
	configDir := filepath.Join(root, "config-dir")

	writeDropIn(t, pkgDropIn, map[string]string{
		option.KeyBpfLib:         "/usr/lib/pidtrace/bpf",
		option.KeyExportFilename: "/var/log/pidtrace.log",
	})
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	conf, err := yaml.Marshal(map[string]interface{}{
		option.KeyBpfLib: "/etc/bpf",
		option.KeyBTF:    "/etc/vmlinux",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "pidtrace.yaml"), conf, 0o644))
	writeDropIn(t, adminDropIn, map[string]string{
		option.KeyVerbosity: "2",
		option.KeyBTF:       "/etc/conf.d/vmlinux",
	})
	writeDropIn(t, configDir, map[string]string{
		option.KeyPids: "100,200",
	})

	viper.Set(option.KeyConfigDir, configDir)
	t.Setenv("PIDTRACE_POLL_BATCH", "8")

	readConfigSettings(confDir, adminDropIn, []string{pkgDropIn, filepath.Join(root, "missing")})

	assert.Equal(t, "/var/log/pidtrace.log", viper.GetString(option.KeyExportFilename))
	assert.Equal(t, "/etc/bpf", viper.GetString(option.KeyBpfLib))
	assert.Equal(t, "/etc/conf.d/vmlinux", viper.GetString(option.KeyBTF))
	assert.Equal(t, 2, viper.GetInt(option.KeyVerbosity))
	assert.Equal(t, "100,200", viper.GetString(option.KeyPids))
	assert.Equal(t, 8, viper.GetInt(option.KeyPollBatch))
}

func TestReadConfigDir_NotADir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	require.Error(t, readConfigDir(f))
}
