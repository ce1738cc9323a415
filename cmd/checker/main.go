// Copyright 2022 Metrika Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checker/internal/pkg/checker"
	"checker/internal/pkg/exporter"
	"checker/internal/pkg/global"
	"checker/internal/pkg/promapi"
	"checker/internal/pkg/scrape"
	"checker/pkg/metricdef"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func setupZapLogger(conf *global.Config) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(conf.Level())
	cfg.OutputPaths = conf.LogOutputs
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}
	cfg.EncoderConfig.EncodeTime = logTimestampMSEncoder
	opts := []zap.Option{
		zap.AddStacktrace(zapcore.WarnLevel),
	}
	l, err := cfg.Build(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup zap logging: %v", err))
	}

	// set newly configured logger as default (access via zap.L() // zap.S())
	zap.ReplaceGlobals(l)
}

// logTimestampMSEncoder encodes the log timestamp as an int64 from Time.UnixMilli()
func logTimestampMSEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendInt64(t.UnixMilli())
}

func main() {
	conf, err := global.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	setupZapLogger(conf)
	log := zap.S()
	defer log.Sync()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.ListenAndServe(conf.MetricsAddr, nil)
	}()

	runID := uuid.New().String()
	log = log.With("run_id", runID)

	defs, err := metricdef.Load(conf.ExporterConf)
	if err != nil {
		log.Fatalw("failed to load metric definitions", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exp := exporter.New(exporter.Config{
		Path:     conf.ExporterPath,
		ConfPath: conf.ExporterConf,
		Port:     conf.ExporterPort,
		SMP:      conf.SMP,
		EnvFile:  conf.EnvFile,
	})
	if err := exp.Start(ctx); err != nil {
		log.Fatalw("failed to start exporter", zap.Error(err))
	}
	defer exp.Stop()

	if rss, cpu, err := exp.Usage(); err == nil {
		log.Infow("exporter running", "resident_bytes", rss, "cpu_seconds", cpu)
	}

	scraper := scrape.NewClient(scrape.Config{Addr: exp.Addr()})

	var prom *promapi.Client
	if conf.Prometheus != "" {
		prom = promapi.NewClient(conf.Prometheus)
	}

	c := checker.New(checker.Config{
		Shards:         conf.SMP,
		ScrapeInterval: conf.PrometheusScrapeInterval,
	}, scraper, prom, defs)

	if err := c.Run(ctx); err != nil {
		log.Errorw("verification failed", zap.Error(err))
		exp.Stop()
		os.Exit(1)
	}

	log.Info("all checks passed")
}
