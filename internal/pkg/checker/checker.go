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

// Package checker runs the verification suite against a live exporter: it
// compares the exporter's exposition output with records computed from the
// metric definitions, and optionally with the monitoring system's view of
// the same series.
package checker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"checker/internal/pkg/promapi"
	"checker/internal/pkg/scrape"
	"checker/pkg/exposition"
	"checker/pkg/metricdef"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config configures a suite run.
type Config struct {
	// Prefix is the exporter's network prefix ("seastar").
	Prefix string
	// Group is the metric group all definitions register under
	// ("test_group").
	Group string
	// Shards the exporter was started with. When set, the aggregation check
	// expects one series per shard with aggregation disabled.
	Shards int
	// ScrapeInterval of the monitoring system. The cross-system check waits
	// it out before querying, the system cannot be forced to scrape.
	ScrapeInterval time.Duration
}

// Checker holds the collaborators of one suite run.
type Checker struct {
	conf    Config
	scraper *scrape.Client
	prom    *promapi.Client
	defs    *metricdef.Config
	log     *zap.SugaredLogger
}

// Check is one named verification.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// New returns a checker. prom may be nil when no monitoring system is
// configured; the cross-system check is skipped then.
func New(conf Config, scraper *scrape.Client, prom *promapi.Client, defs *metricdef.Config) *Checker {
	if conf.Prefix == "" {
		conf.Prefix = "seastar"
	}
	if conf.Group == "" {
		conf.Group = "test_group"
	}
	if conf.ScrapeInterval == 0 {
		conf.ScrapeInterval = 15 * time.Second
	}

	return &Checker{
		conf:    conf,
		scraper: scraper,
		prom:    prom,
		defs:    defs,
		log:     zap.S().With("module", "checker"),
	}
}

// FullName returns the fully-qualified metric name as it appears in the
// exposition text.
func (c *Checker) FullName(name string) string {
	return c.conf.Prefix + "_" + c.conf.Group + "_" + name
}

// ExportedName returns the name the exporter filters on server-side, which
// excludes the network prefix.
func (c *Checker) ExportedName(name string) string {
	return c.conf.Group + "_" + name
}

// Checks returns the suite in execution order.
func (c *Checker) Checks() []Check {
	return []Check{
		{Name: "well_formed", Run: c.CheckWellFormed},
		{Name: "label_filtering", Run: c.CheckLabelFiltering},
		{Name: "label_regexes", Run: c.CheckLabelRegexes},
		{Name: "aggregation", Run: c.CheckAggregation},
		{Name: "help", Run: c.CheckHelp},
		{Name: "monitoring_system", Run: c.CheckMonitoringSystem},
	}
}

// Run executes the whole suite and returns an error when any check failed.
func (c *Checker) Run(ctx context.Context) error {
	var failed int
	for _, check := range c.Checks() {
		ChecksRunCnt.WithLabelValues(check.Name).Inc()
		if err := check.Run(ctx); err != nil {
			ChecksFailedCnt.WithLabelValues(check.Name).Inc()
			c.log.Errorw("check failed", "check", check.Name, zap.Error(err))
			failed++
			continue
		}
		c.log.Infow("check passed", "check", check.Name)
	}

	if failed > 0 {
		return errors.Errorf("%d of %d checks failed", failed, len(c.Checks()))
	}
	return nil
}

// CheckWellFormed runs the raw exposition body through the canonical text
// parser.
func (c *Checker) CheckWellFormed(ctx context.Context) error {
	families, err := c.scraper.Validate(ctx, scrape.Params{})
	if err != nil {
		return err
	}
	if len(families) == 0 {
		return errors.New("exporter exposed no metric families")
	}
	return nil
}

// CheckLabelFiltering scrapes with a server-side label filter and compares
// the surviving records with those computed from the matching definitions.
func (c *Checker) CheckLabelFiltering(ctx context.Context) error {
	filter := map[string]string{"private": "1"}

	m, err := c.fetch(ctx, scrape.Params{Labels: filter})
	if err != nil {
		return err
	}
	actual, err := m.Query("", nil)
	if err != nil {
		return err
	}

	expected := []exposition.Record{}
	for _, def := range c.defs.Metrics {
		if !labelsEqual(def.Labels, filter) {
			continue
		}
		r, err := def.Record(c.FullName(def.Name))
		if err != nil {
			return err
		}
		expected = append(expected, r)
	}

	return matchRecords(expected, actual)
}

// CheckLabelRegexes exercises server-side label-regex filtering against an
// aggregated exposition.
func (c *Checker) CheckLabelRegexes(ctx context.Context) error {
	tests := []struct {
		regex string
		found int
	}{
		{regex: "dne", found: 0},
		{regex: "404", found: 0},
		{regex: "2", found: c.countDefsWithPrivate("2")},
		// both series survive the filter but aggregation folds them per name
		{regex: "2|3", found: c.countDefsWithPrivate("2", "3")},
	}

	for _, tt := range tests {
		m, err := c.fetch(ctx, scrape.Params{Labels: map[string]string{"private": tt.regex}})
		if err != nil {
			return err
		}
		records, err := m.Query("", nil)
		if err != nil {
			return err
		}
		if len(records) != tt.found {
			return errors.Errorf("label regex %q: expected %d records, got %d", tt.regex, tt.found, len(records))
		}
	}
	return nil
}

// CheckAggregation verifies that disabling shard aggregation exposes one
// series per shard, and that the aggregated series carries their sum. The
// core reflects what the stream contains; summing is the exporter's job.
func (c *Checker) CheckAggregation(ctx context.Context) error {
	const name = "counter_1"

	perShard, err := c.queryCounter(ctx, name, scrape.Params{
		Name:        c.ExportedName(name),
		NoAggregate: true,
	})
	if err != nil {
		return err
	}
	if len(perShard) == 0 {
		return errors.Errorf("no per-shard series for %s", name)
	}
	if c.conf.Shards > 0 && len(perShard) != c.conf.Shards {
		return errors.Errorf("expected %d per-shard series for %s, got %d", c.conf.Shards, name, len(perShard))
	}

	var sum float64
	for _, v := range perShard {
		sum += v
	}

	aggregated, err := c.queryCounter(ctx, name, scrape.Params{Name: c.ExportedName(name)})
	if err != nil {
		return err
	}
	if len(aggregated) != 1 {
		return errors.Errorf("expected one aggregated series for %s, got %d", name, len(aggregated))
	}
	if aggregated[0] != sum {
		return errors.Errorf("aggregated value %v does not match per-shard sum %v", aggregated[0], sum)
	}
	return nil
}

// CheckHelp verifies HELP text presence and its suppression via
// __help__=false.
func (c *Checker) CheckHelp(ctx context.Context) error {
	const name = "counter_1"
	fullName := c.FullName(name)

	m, err := c.fetch(ctx, scrape.Params{Name: c.ExportedName(name)})
	if err != nil {
		return err
	}
	if _, ok := m.HelpText(fullName); !ok {
		return errors.Errorf("no HELP text for %s", fullName)
	}

	m, err = c.fetch(ctx, scrape.Params{Name: c.ExportedName(name), NoHelp: true})
	if err != nil {
		return err
	}
	if text, ok := m.HelpText(fullName); ok {
		return errors.Errorf("HELP text for %s not suppressed: %q", fullName, text)
	}
	return nil
}

// CheckMonitoringSystem waits out one scrape interval and compares every
// private definition against the monitoring system's native view.
func (c *Checker) CheckMonitoringSystem(ctx context.Context) error {
	if c.prom == nil {
		c.log.Info("monitoring system not configured, skipping cross-system check")
		return nil
	}

	// the system cannot be forced to scrape; wait for it to come around
	c.log.Infow("waiting for monitoring system scrape", "interval", c.conf.ScrapeInterval)
	select {
	case <-time.After(c.conf.ScrapeInterval + time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	filter := map[string]string{"private": "1"}
	for _, def := range c.defs.Metrics {
		if !labelsEqual(def.Labels, filter) {
			continue
		}

		fullName := c.FullName(def.Name)
		expected, err := def.Record(fullName)
		if err != nil {
			return err
		}

		got, err := c.prom.Query(ctx, fullName, def.Type)
		if err != nil {
			return err
		}
		if !expected.Equal(got) {
			return errors.Errorf("%s: monitoring system sees %v, expected %v", fullName, got, expected)
		}
	}
	return nil
}

func (c *Checker) fetch(ctx context.Context, p scrape.Params) (*exposition.Metrics, error) {
	start := time.Now()
	m, err := c.scraper.Fetch(ctx, p)
	ScrapeDuration.Observe(time.Since(start).Seconds())
	return m, err
}

// queryCounter returns the sorted scalar values of one metric's series.
func (c *Checker) queryCounter(ctx context.Context, name string, p scrape.Params) ([]float64, error) {
	m, err := c.fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	records, err := m.Query(c.FullName(name), nil)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(records))
	for _, r := range records {
		if r.IsHistogram() {
			return nil, errors.Errorf("unexpected histogram series for %s", name)
		}
		values = append(values, r.Value)
	}
	sort.Float64s(values)
	return values, nil
}

// countDefsWithPrivate counts the distinct metric names carrying one of the
// given private label values. Series sharing a name fold into one under
// aggregation, so names are what the filtered exposition surfaces.
func (c *Checker) countDefsWithPrivate(values ...string) int {
	names := map[string]struct{}{}
	for _, def := range c.defs.Metrics {
		for _, v := range values {
			if def.Labels["private"] == v {
				names[def.Name] = struct{}{}
				break
			}
		}
	}
	return len(names)
}

func labelsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// matchRecords compares two record sets as multisets under value equality.
// Name and labels never participate, so this cannot rely on reflect-based
// helpers.
func matchRecords(expected, actual []exposition.Record) error {
	if len(expected) != len(actual) {
		return errors.Errorf("expected %d records, got %d", len(expected), len(actual))
	}

	remaining := make([]exposition.Record, len(actual))
	copy(remaining, actual)

	for _, e := range expected {
		found := -1
		for i, a := range remaining {
			if e.Equal(a) {
				found = i
				break
			}
		}
		if found < 0 {
			return fmt.Errorf("no live record matches expected %v", e)
		}
		remaining = append(remaining[:found], remaining[found+1:]...)
	}
	return nil
}
