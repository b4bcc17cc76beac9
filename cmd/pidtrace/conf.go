// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pidtrace/pidtrace/pkg/defaults"
	"github.com/pidtrace/pidtrace/pkg/option"

	"github.com/spf13/viper"
)

var (
	adminConfDir       = "/etc/pidtrace/"
	adminConfDropIn    = defaults.DefaultConfigDir
	packageConfDropIns = []string{
		"/usr/lib/pidtrace/pidtrace.conf.d/",
		"/usr/local/lib/pidtrace/pidtrace.conf.d/",
	}
)

func readConfigFile(path string, file string) error {
	filePath := filepath.Join(path, file)
	st, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("failed to read config file '%s' not a regular file", file)
	}

	viper.SetConfigFile(filePath)
	return viper.MergeInConfig()
}

func readConfigDir(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("'%s' is not a directory", path)
	}

	cm, err := option.ReadDirConfig(path)
	if err != nil {
		return err
	}
	if err := viper.MergeConfigMap(cm); err != nil {
		return fmt.Errorf("merge config failed %w", err)
	}

	return nil
}

// readConfigSettings layers the configuration sources. Later sources win:
// package drop-ins, ./pidtrace.yaml, <confDir>/pidtrace.yaml, the admin
// drop-in directory and finally --config-dir. Environment variables and
// flags take precedence over all files.
func readConfigSettings(confDir string, confDropIn string, dropInsDir []string) {
	viper.SetEnvPrefix("pidtrace")
	replacer := strings.NewReplacer("-", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	viper.SetConfigType("yaml")

	// Missing sources are expected, only --config-dir is mandatory.
	for _, dir := range dropInsDir {
		readConfigDir(dir)
	}

	// Look into cwd first, this is needed for quick development only
	readConfigFile(".", "pidtrace.yaml")

	readConfigFile(confDir, "pidtrace.yaml")

	readConfigDir(confDropIn)

	if viper.IsSet(option.KeyConfigDir) {
		configDir := viper.GetString(option.KeyConfigDir)
		// viper.IsSet could return true on an empty string reset
		if configDir != "" {
			err := readConfigDir(configDir)
			if err != nil {
				log.WithField(option.KeyConfigDir, configDir).WithError(err).Fatal("Failed to read config from directory")
			} else {
				log.WithField(option.KeyConfigDir, configDir).Info("Loaded config from directory")
			}
		}
	}
}
