// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cilium/lumberjack/v2"
	gops "github.com/google/gops/agent"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/pidtrace/pidtrace/pkg/bpf"
	"github.com/pidtrace/pidtrace/pkg/btf"
	"github.com/pidtrace/pidtrace/pkg/defaults"
	"github.com/pidtrace/pidtrace/pkg/encoder"
	"github.com/pidtrace/pidtrace/pkg/exporter"
	"github.com/pidtrace/pidtrace/pkg/logger"
	"github.com/pidtrace/pidtrace/pkg/metrics"
	metricsconfig "github.com/pidtrace/pidtrace/pkg/metrics/config"
	"github.com/pidtrace/pidtrace/pkg/observer"
	"github.com/pidtrace/pidtrace/pkg/option"
	"github.com/pidtrace/pidtrace/pkg/pidfile"
	"github.com/pidtrace/pidtrace/pkg/procinfo"
	"github.com/pidtrace/pidtrace/pkg/ratelimit"
	"github.com/pidtrace/pidtrace/pkg/sensors"
	"github.com/pidtrace/pidtrace/pkg/version"
)

var (
	log = logger.GetLogger()
)

// allowFlag is the value stored for allow-listed pids.
const allowFlag uint8 = 1

func execute() error {
	rootCmd := newRootCmd()

	cobra.OnInitialize(func() {
		readConfigSettings(adminConfDir, adminConfDropIn, packageConfDropIns)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		log.Infof("Received signal %s, shutting down...", s)
		cancel()
	}()

	return rootCmd.ExecuteContext(ctx)
}

func pidtraceExecute(ctx context.Context) error {
	// Logging should always be bootstrapped first. Do not add any code above this!
	if err := logger.SetupLogging(option.Config.LogOpts, option.Config.Debug); err != nil {
		log.Fatal(err)
	}

	log.WithField("version", version.Version).Info("Starting pidtrace")
	log.WithField("config", viper.AllSettings()).Info("config settings")

	if option.Config.GopsAddr != "" {
		log.WithField("addr", option.Config.GopsAddr).Info("Starting gops server")
		if err := gops.Listen(gops.Options{
			Addr:                   option.Config.GopsAddr,
			ReuseSocketAddrAndPort: true,
		}); err != nil {
			log.WithError(err).Fatal("Failed to start gops")
		}
		defer gops.Close()
	}

	if option.Config.PidFile != "" {
		pid, err := pidfile.Create(option.Config.PidFile)
		if err != nil {
			log.WithField("pid", pid).WithError(err).Fatal("Failed to create pid file")
		}
		defer pidfile.Delete(option.Config.PidFile)
	}

	// Raise memory resource
	if err := bpf.ConfigureResourceLimits(); err != nil {
		log.WithError(err).Warn("Failed to remove memlock limit")
	}
	log.WithField("features", bpf.LogFeatures()).Info("BPF detected features")

	objPath := option.Config.BpfObjectPath()
	image, err := os.ReadFile(objPath)
	if err != nil {
		log.WithField("file", objPath).WithError(err).Fatal("Failed to read probe image")
	}

	if err := btf.InitCachedBTF(option.Config.BpfLib, option.Config.BTF); err != nil {
		log.WithError(err).Fatal("BTF discovery failed")
	}
	kernelTypes, err := btf.NewBTF()
	if err != nil {
		log.WithField("btf-file", btf.GetCachedBTFFile()).WithError(err).Fatal("Failed to parse BTF")
	}

	sensor, err := sensors.NewFromImage(version.Name, image, sensors.Options{
		Disabled: option.Config.DisabledProbes,
		HasLSM:   bpf.HasLSMPrograms,
		Verbose:  option.Config.Verbosity,
	})
	if err != nil {
		log.WithField("file", objPath).WithError(err).Fatal("Failed to create sensor")
	}
	defer func() {
		if err := sensor.Unload(); err != nil {
			log.WithError(err).Warn("Failed to unload probes")
		}
	}()

	metricsconfig.InitAllMetrics(metrics.GetRegistry())

	// Probe failures are reported per probe and never stop the others.
	if err := sensor.Load(kernelTypes); err != nil {
		log.WithError(err).Warn("Some probes failed to load")
	}
	log.WithField("attached", len(sensor.Attached())).Info("Probes ready")

	procs, err := procinfo.NewCache(option.Config.ProcFS, procinfo.DefaultCacheSize)
	if err != nil {
		log.WithError(err).Warn("Process names will not be resolved")
		procs = nil
	}

	if err := allowPids(sensor, procs); err != nil {
		log.WithError(err).Fatal("Failed to set up pid allow-list")
	}

	events, err := sensor.Map(defaults.DefaultEventMap)
	if err != nil {
		log.WithError(err).Fatal("Events ring buffer missing")
	}
	source, err := observer.NewRingBufSource(events)
	if err != nil {
		log.WithError(err).Fatal("Failed to open events ring buffer")
	}
	defer source.Close()

	obs := observer.NewObserver(source, observer.Options{
		PollInterval: option.Config.PollInterval,
		PollBatch:    option.Config.PollBatch,
	})
	defer func() {
		obs.PrintStats()
		obs.Close()
	}()

	printer := encoder.NewCompactEncoder(os.Stdout, encoder.ColorMode(option.Config.Color), option.Config.Timestamps)
	if option.Config.ShowComm && procs != nil {
		printer.Comm = procs.Comm
	}
	obs.AddListener(encoder.NewListener(printer))
	if logger.DefaultLogger.IsLevelEnabled(logrus.DebugLevel) {
		obs.AddListener(observer.LogListener{Log: logger.WithSubsys("events")})
	}
	if option.Config.ExportFilename != "" {
		obs.AddListener(startExporter(ctx))
	}
	log.WithField("enabled", option.Config.ExportFilename != "").
		WithField("fileName", option.Config.ExportFilename).
		Info("Exporter configuration")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	if option.Config.MetricsServer != "" {
		g.Go(func() error {
			return metrics.EnableMetrics(ctx, option.Config.MetricsServer)
		})
	}
	g.Go(func() error {
		// the observer only stops on cancellation or a closed source,
		// either way the rest of the group goes down with it
		defer cancel()
		return obs.Start(ctx)
	})
	return g.Wait()
}

// allowPids registers the pids the probes report on. procs may be nil.
func allowPids(sensor *sensors.Sensor, procs *procinfo.Cache) error {
	m, err := sensor.Map(bpf.PidAllowMapName)
	if err != nil {
		return err
	}
	allow := bpf.NewPidAllowMap(m)

	pids := option.Config.Pids
	if option.Config.TraceSelf {
		pids = append([]uint32{uint32(os.Getpid())}, pids...)
	}
	if len(pids) == 0 {
		log.Warn("Pid allow-list is empty, no events will be reported")
	}
	var errs error
	for _, pid := range pids {
		if err := allow.Insert(pid, allowFlag); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		entry := log.WithField("pid", pid)
		if procs != nil {
			if !procs.Alive(pid) {
				entry.Warn("Tracing pid that is not running")
				continue
			}
			entry = entry.WithField("comm", procs.Comm(pid))
		}
		entry.Info("Tracing pid")
	}
	return errs
}

func startExporter(ctx context.Context) *exporter.Exporter {
	writer := &lumberjack.Logger{
		Filename:   option.Config.ExportFilename,
		MaxSize:    option.Config.ExportFileMaxSizeMB,
		MaxBackups: option.Config.ExportFileMaxBackups,
		Compress:   option.Config.ExportFileCompress,
	}
	exp := exporter.NewExporter(writer, nil)
	if option.Config.ExportRateLimit >= 0 {
		exp.SetRateLimiter(ratelimit.NewRateLimiter(ctx, 1*time.Minute, option.Config.ExportRateLimit, exp.InfoEncoder()))
	}
	log.WithField("logger", writer.Filename).Info("Starting JSON exporter")
	return exp
}

// encodeJSON is shared by the subcommands printing machine readable output.
func encodeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
