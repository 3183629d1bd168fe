// Command recgen drives pkg/recgen's producer/consumer pipeline: it
// loads configuration and site data, builds a StreamCache-backed sink,
// and runs either a single-process generation pass or, when
// num-subprocesses calls for it, re-execs itself across disjoint time
// windows.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/movsoftware/silk-sub015/internal/config"
	"github.com/movsoftware/silk-sub015/internal/metricsserver"
	"github.com/movsoftware/silk-sub015/internal/site"
	"github.com/movsoftware/silk-sub015/pkg/recgen"
	"github.com/movsoftware/silk-sub015/pkg/telemetry"
)

func main() {
	var (
		configFile        string
		subprocessWindow  int
		startTimeFlag     string
		endTimeFlag       string
		seedFlag          int64
	)
	flag.StringVar(&configFile, "config", "", "path to configuration file")
	flag.IntVar(&subprocessWindow, "subprocess-window", -1, "internal: this process's shard index when re-exec'd")
	flag.StringVar(&startTimeFlag, "start-time", "", "override configured start time (RFC3339)")
	flag.StringVar(&endTimeFlag, "end-time", "", "override configured end time (RFC3339)")
	flag.Int64Var(&seedFlag, "seed", 0, "override configured seed")
	rootDataDirFlag := flag.String("root-data-dir", "", "override configured root data directory")
	flag.Parse()

	if configFile == "" {
		configFile = os.Getenv("SILK_CONFIG_FILE")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recgen: configuration error: %v\n", err)
		os.Exit(2)
	}
	if startTimeFlag != "" {
		if t, perr := time.Parse(time.RFC3339, startTimeFlag); perr == nil {
			cfg.StartTime = t
		}
	}
	if endTimeFlag != "" {
		if t, perr := time.Parse(time.RFC3339, endTimeFlag); perr == nil {
			cfg.EndTime = t
		}
	}
	if seedFlag != 0 {
		cfg.Seed = seedFlag
	}
	if *rootDataDirFlag != "" {
		cfg.RootDataDir = *rootDataDirFlag
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(logger.Formatter)

	if subprocessWindow >= 0 {
		if err := runOne(cfg); err != nil {
			logger.WithError(err).Error("recgen shard failed")
			os.Exit(1)
		}
		return
	}

	n := cfg.NumSubprocesses
	if n == 0 {
		n = recgen.DefaultSubprocessCount()
	}
	if n <= 1 {
		if err := runOne(cfg); err != nil {
			logger.WithError(err).Error("recgen run failed")
			os.Exit(1)
		}
		return
	}

	windows := recgen.SplitWindows(cfg.StartTime, cfg.EndTime, cfg.TimeStep, n, cfg.Seed, cfg.RootDataDir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := recgen.RunSubprocesses(ctx, windows, []string{"-config", configFile}); err != nil {
		logger.WithError(err).Error("one or more recgen subprocesses failed")
		os.Exit(1)
	}
}

func runOne(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	tracer, shutdownTracer, err := telemetry.NewTracerProvider(ctx, telemetry.TracerProviderConfig{
		ServiceName: "silk-recgen",
		Endpoint:    cfg.TraceEndpoint,
	})
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	ms := metricsserver.New(cfg.MetricsAddr, reg, logrus.StandardLogger())
	ms.Start()
	defer ms.Stop(context.Background())

	if cfg.SiteConfigFile != "" {
		s, err := site.Load(cfg.SiteConfigFile)
		if err != nil {
			return err
		}
		if err := s.Watch(); err != nil {
			logrus.WithError(err).Warn("site config hot-reload disabled")
		} else {
			defer s.Close()
		}
		var sensorCount int
		for range s.SensorIter("all") {
			sensorCount++
		}
		logrus.WithField("sensors", sensorCount).Info("loaded site configuration")
	}

	spillDir := filepath.Join(cfg.RootDataDir, "processing")
	outputDir := filepath.Join(cfg.RootDataDir, "output")
	if err := os.MkdirAll(spillDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	sink, err := newStreamSink(cfg.FileCacheSize, outputDir, spillDir, cfg.FlushTimeout)
	if err != nil {
		return err
	}
	defer sink.Close()

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	pipelineCfg := recgen.Config{
		Classes: []recgen.ClassConfig{
			{Name: cfg.RoleIn, TargetPercent: 0.4, RecsPerEvent: 1, EventsPerStep: cfg.EventsPerStep, TimeStep: cfg.TimeStep},
			{Name: cfg.RoleInweb, TargetPercent: 0.1, RecsPerEvent: 1, EventsPerStep: cfg.EventsPerStep, TimeStep: cfg.TimeStep},
			{Name: cfg.RoleOut, TargetPercent: 0.4, RecsPerEvent: 1, EventsPerStep: cfg.EventsPerStep, TimeStep: cfg.TimeStep},
			{Name: cfg.RoleOutweb, TargetPercent: 0.1, RecsPerEvent: 1, EventsPerStep: cfg.EventsPerStep, TimeStep: cfg.TimeStep},
		},
		StartTime:     cfg.StartTime,
		EndTime:       cfg.EndTime,
		Seed:          seed,
		MaxAvailable:  1024,
		FlushInterval: cfg.FlushTimeout,
		UseHeap:       true,
		HeapCapacity:  4096,
	}

	pipeline := recgen.New(pipelineCfg, sink, metrics, tracer)
	if err := pipeline.Run(ctx); err != nil {
		return err
	}
	return sink.Flush()
}
