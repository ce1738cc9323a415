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

// Package scrape fetches text exposition output from the exporter's metrics
// endpoint. The endpoint pre-filters server-side through query parameters;
// any further exact-match filtering happens client-side in pkg/exposition.
package scrape

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"checker/pkg/exposition"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config configures a metrics endpoint client.
type Config struct {
	// Addr is the exporter's host:port.
	Addr string
	// Path of the exposition endpoint, /metrics when empty.
	Path string
	// Timeout bounds one GET including body read.
	Timeout time.Duration
}

// Params select what the exporter exposes for one request.
type Params struct {
	// Name restricts output to one metric name (__name__).
	Name string
	// Labels are label=regex pairs the exporter filters series by.
	Labels map[string]string
	// NoHelp suppresses # HELP lines (__help__=false).
	NoHelp bool
	// NoAggregate disables shard-level aggregation, exposing one series per
	// shard instead of a summed series (__aggregate__=false).
	NoAggregate bool
}

// Client issues scoped GET requests against one exporter.
type Client struct {
	Config

	client *http.Client
	log    *zap.SugaredLogger
}

// NewClient returns a metrics endpoint client for the exporter at
// conf.Addr.
func NewClient(conf Config) *Client {
	if conf.Path == "" {
		conf.Path = "/metrics"
	}
	if conf.Timeout == 0 {
		conf.Timeout = 10 * time.Second
	}

	return &Client{
		Config: conf,
		client: &http.Client{},
		log:    zap.S().With("addr", conf.Addr),
	}
}

// URL builds the endpoint URL for the given request parameters.
func (c *Client) URL(p Params) string {
	query := url.Values{}
	if p.Name != "" {
		query.Set("__name__", p.Name)
	}
	for k, v := range p.Labels {
		query.Set(k, v)
	}
	if p.NoHelp {
		query.Set("__help__", "false")
	}
	if p.NoAggregate {
		query.Set("__aggregate__", "false")
	}

	u := url.URL{
		Scheme:   "http",
		Host:     c.Addr,
		Path:     c.Path,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// Fetch GETs the exposition body and wraps it for querying. The response
// body is read fully and closed before the call returns.
func (c *Client) Fetch(ctx context.Context, p Params) (*exposition.Metrics, error) {
	body, err := c.fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	return exposition.New(string(body)), nil
}

func (c *Client) fetch(ctx context.Context, p Params) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	reqURL := c.URL(p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "invalid metrics request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "metrics request failed, url: %s", reqURL)
	}
	if resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, errors.Errorf("metrics request failed, url: %s, status_code: %d", reqURL, resp.StatusCode)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, errors.Wrap(err, "failed to read exposition body")
	}

	if err := resp.Body.Close(); err != nil {
		c.log.Errorw("failed to close http body", zap.Error(err))
	}

	return out, nil
}
