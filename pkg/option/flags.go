// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package option

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pidtrace/pidtrace/pkg/defaults"
	"github.com/pidtrace/pidtrace/pkg/logger"
)

const (
	KeyConfigDir = "config-dir"
	KeyDebug     = "debug"
	KeyProcFS    = "procfs"
	KeyBpfLib    = "bpf-lib"
	KeyBpfObject = "bpf-object"
	KeyBTF       = "btf"
	KeyVerbosity = "verbose"

	KeyLogLevel  = "log-level"
	KeyLogFormat = "log-format"

	KeyPids          = "pids"
	KeyTraceSelf     = "trace-self"
	KeyDisableProbes = "disable-probes"

	KeyPollInterval = "poll-interval"
	KeyPollBatch    = "poll-batch"

	KeyColor      = "color"
	KeyTimestamps = "timestamps"
	KeyShowComm   = "show-comm"

	KeyExportFilename       = "export-filename"
	KeyExportFileMaxSizeMB  = "export-file-max-size-mb"
	KeyExportFileMaxBackups = "export-file-max-backups"
	KeyExportFileCompress   = "export-file-compress"
	KeyExportRateLimit      = "export-rate-limit"

	KeyMetricsServer = "metrics-server"
	KeyGopsAddr      = "gops-address"
	KeyPidFile       = "pid-file"
)

var ErrInvalidPollBatch = errors.New("poll batch must be positive")

func ReadAndSetFlags() error {
	Config.ProcFS = viper.GetString(KeyProcFS)
	Config.BpfLib = viper.GetString(KeyBpfLib)
	Config.BpfObject = viper.GetString(KeyBpfObject)
	Config.BTF = viper.GetString(KeyBTF)
	Config.Verbosity = viper.GetInt(KeyVerbosity)
	Config.Debug = viper.GetBool(KeyDebug)

	pids, err := parsePids(splitList(viper.GetStringSlice(KeyPids)))
	if err != nil {
		return err
	}
	Config.Pids = pids
	Config.TraceSelf = viper.GetBool(KeyTraceSelf)
	Config.DisabledProbes = mapset.NewSet[string]()
	for _, p := range splitList(viper.GetStringSlice(KeyDisableProbes)) {
		Config.DisabledProbes.Add(p)
	}

	Config.PollInterval = viper.GetDuration(KeyPollInterval)
	if Config.PollInterval <= 0 {
		Config.PollInterval = defaults.DefaultPollInterval
	}
	Config.PollBatch = viper.GetInt(KeyPollBatch)
	if Config.PollBatch <= 0 {
		return fmt.Errorf("%s=%d: %w", KeyPollBatch, Config.PollBatch, ErrInvalidPollBatch)
	}

	Config.Color = viper.GetString(KeyColor)
	Config.Timestamps = viper.GetBool(KeyTimestamps)
	Config.ShowComm = viper.GetBool(KeyShowComm)

	Config.ExportFilename = viper.GetString(KeyExportFilename)
	Config.ExportFileMaxSizeMB = viper.GetInt(KeyExportFileMaxSizeMB)
	Config.ExportFileMaxBackups = viper.GetInt(KeyExportFileMaxBackups)
	Config.ExportFileCompress = viper.GetBool(KeyExportFileCompress)
	Config.ExportRateLimit = viper.GetInt(KeyExportRateLimit)

	Config.MetricsServer = viper.GetString(KeyMetricsServer)
	Config.GopsAddr = viper.GetString(KeyGopsAddr)
	Config.PidFile = viper.GetString(KeyPidFile)

	Config.LogOpts = make(map[string]string)
	logger.PopulateLogOpts(Config.LogOpts, viper.GetString(KeyLogLevel), viper.GetString(KeyLogFormat))
	return nil
}

// splitList flattens list values. Values read from drop-in files or the
// environment arrive as one comma separated string.
func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func parsePids(vals []string) ([]uint32, error) {
	var pids []uint32
	for _, v := range vals {
		pid, err := strconv.ParseUint(v, 10, 32)
		if err != nil || pid == 0 {
			return nil, fmt.Errorf("invalid pid %q in --%s", v, KeyPids)
		}
		pids = append(pids, uint32(pid))
	}
	return pids, nil
}

// BpfObjectPath is where the probe image is read from.
func (c *config) BpfObjectPath() string {
	if filepath.IsAbs(c.BpfObject) {
		return c.BpfObject
	}
	return filepath.Join(c.BpfLib, c.BpfObject)
}

func AddFlags(flags *pflag.FlagSet) {
	flags.String(KeyConfigDir, "", "Configuration directory that contains a file for each option")
	flags.BoolP(KeyDebug, "d", false, "Enable debug messages. Equivalent to '--log-level=debug'")
	flags.String(KeyProcFS, "/proc/", "Location of procfs to resolve process names")
	flags.String(KeyBpfLib, defaults.DefaultPidtraceLib, "Location of the probe image and BTF files")
	flags.String(KeyBpfObject, defaults.DefaultBpfObject, "Probe image file name, relative to bpf-lib unless absolute")
	flags.String(KeyBTF, "", "Location of btf")
	flags.Int(KeyVerbosity, 0, "set verbosity level for eBPF verifier dumps. Pass 0 for silent, 1 for truncated logs, 2 for a full dump")

	flags.String(KeyLogLevel, "info", "Set log level")
	flags.String(KeyLogFormat, "text", "Set log format")

	flags.StringSlice(KeyPids, nil, "Additional pids to add to the allow-list")
	flags.Bool(KeyTraceSelf, true, "Add the pidtrace process itself to the allow-list")
	flags.StringSlice(KeyDisableProbes, nil, "Comma-separated list of probe names to leave unloaded")

	flags.Duration(KeyPollInterval, defaults.DefaultPollInterval, "Interval between ring buffer polls")
	flags.Int(KeyPollBatch, defaults.DefaultPollBatch, "Maximum number of events consumed per poll")

	flags.String(KeyColor, "auto", "Colorize output; one of 'auto', 'never', 'always'")
	flags.Bool(KeyTimestamps, true, "Include timestamps in the printed events")
	flags.Bool(KeyShowComm, true, "Print the command name next to the pid")

	flags.String(KeyExportFilename, "", "Filename for JSON export. Disabled by default")
	flags.Int(KeyExportFileMaxSizeMB, 10, "Size in MB for rotating JSON export files")
	flags.Int(KeyExportFileMaxBackups, 5, "Number of rotated JSON export files to retain")
	flags.Bool(KeyExportFileCompress, false, "Compress rotated JSON export files")
	flags.Int(KeyExportRateLimit, defaults.DefaultExportRateLimit, "Rate limit (per minute) for event export. Set to -1 to disable")

	flags.String(KeyMetricsServer, "", "Metrics server address (e.g. ':2112'). Disabled by default")
	flags.String(KeyGopsAddr, "", "gops server address (e.g. 'localhost:8118'). Disabled by default")
	flags.String(KeyPidFile, defaults.DefaultPidFile, "Pid file path. Empty disables it")
}

// ReadDirConfig reads a drop-in configuration directory. Each regular
// file is one option: the file name is the key and the trimmed content
// is the value. Hidden files and subdirectories are skipped.
func ReadDirConfig(dirName string) (map[string]interface{}, error) {
	entries, err := os.ReadDir(dirName)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dirName, err)
	}

	settings := map[string]interface{}{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dirName, e.Name())
		st, err := os.Stat(path)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		b, err := os.ReadFile(path)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("file", path).Warn("Failed to read config file")
			continue
		}
		settings[e.Name()] = strings.TrimSpace(string(b))
	}
	return settings, nil
}
