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

// Package global holds the checker's own runtime configuration, loaded from
// flags, environment and an optional YAML file. Precedence, highest first:
// flags, CHECKER_* environment variables, config file, defaults.
package global

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// Config is the checker's runtime configuration.
type Config struct {
	// ExporterPath is the exporter executable under test.
	ExporterPath string `koanf:"exporter"`
	// ExporterConf is the metric-definition file, passed to the exporter and
	// used to compute expected records.
	ExporterConf string `koanf:"conf"`
	// ExporterPort the spawned exporter serves /metrics on.
	ExporterPort int `koanf:"port"`
	// SMP is the exporter's shard count.
	SMP int `koanf:"smp"`
	// EnvFile optionally carries extra environment for the exporter.
	EnvFile string `koanf:"env_file"`

	// Prometheus is the optional monitoring system address (host:port).
	Prometheus string `koanf:"prometheus"`
	// PrometheusScrapeInterval is the monitoring system's scrape interval.
	PrometheusScrapeInterval time.Duration `koanf:"prometheus_scrape_interval"`

	// MetricsAddr serves the checker's own metrics.
	MetricsAddr string `koanf:"metrics_addr"`

	LogLevel   string   `koanf:"log_level"`
	LogOutputs []string `koanf:"log_outputs"`
}

var zapLevelMapper = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"dpanic": zapcore.DPanicLevel,
	"panic":  zapcore.PanicLevel,
	"fatal":  zapcore.FatalLevel,
}

// Level maps the configured log level string to a zap level.
func (c Config) Level() zapcore.Level {
	return zapLevelMapper[c.LogLevel]
}

// Load reads configuration from the given command-line arguments and the
// environment.
func Load(args []string) (*Config, error) {
	k := koanf.New(".")

	f := pflag.NewFlagSet("checker", pflag.ContinueOnError)
	f.String("exporter", "", "path to the exporter executable under test")
	f.String("conf", "./conf.yaml", "path to the metric-definition file")
	f.Int("port", 10001, "port the exporter serves metrics on")
	f.Int("smp", 2, "number of exporter shards")
	f.String("env_file", "", "dotenv file with extra environment for the exporter")
	f.String("prometheus", "", "monitoring system to compare against (host:port, optional)")
	f.Duration("prometheus_scrape_interval", 15*time.Second, "monitoring system scrape interval")
	f.String("metrics_addr", "127.0.0.1:9200", "address to serve the checker's own metrics on")
	f.String("log_level", "info", "log level")
	f.String("config", "", "path to an optional YAML config file")

	if err := f.Parse(args); err != nil {
		return nil, errors.Wrap(err, "failed to parse command-line flags")
	}

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	if err := k.Load(env.Provider("CHECKER_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "CHECKER_"))
	}), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment")
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load flags")
	}

	conf := &Config{}
	if err := k.Unmarshal("", conf); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) validate() error {
	if c.ExporterPath == "" {
		return errors.New("exporter path is required")
	}
	if _, err := os.Stat(c.ExporterConf); err != nil {
		return errors.Wrapf(err, "metric-definition file not found: %s", c.ExporterConf)
	}
	if c.ExporterPort < 1 || c.ExporterPort > 65535 {
		return errors.Errorf("invalid exporter port: %d", c.ExporterPort)
	}
	if c.SMP < 1 {
		return errors.Errorf("invalid shard count: %d", c.SMP)
	}
	if _, ok := zapLevelMapper[c.LogLevel]; !ok {
		return errors.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}
