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

// Package promapi queries the monitoring system's HTTP API for scalar and
// native-histogram instant vectors. Native histogram buckets are remapped to
// the same canonical bucket edges the exposition parser produces, so results
// from either side compare directly.
package promapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"checker/pkg/exposition"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client queries one monitoring system instance.
type Client struct {
	addr    string
	timeout time.Duration
	client  *http.Client
	log     *zap.SugaredLogger
}

// NewClient returns a query client for the API at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		addr:    addr,
		timeout: 10 * time.Second,
		client:  &http.Client{},
		log:     zap.S().With("prometheus", addr),
	}
}

// response is the envelope of /api/v1/query. Result rows are heterogeneous
// (scalar vectors carry "value", native histograms carry "histogram"), so
// they are decoded generically first and remapped per query type.
type response struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string                   `json:"resultType"`
		Result     []map[string]interface{} `json:"result"`
	} `json:"data"`
}

type sample struct {
	Metric    map[string]string `mapstructure:"metric"`
	Value     []interface{}     `mapstructure:"value"`
	Histogram []interface{}     `mapstructure:"histogram"`
}

type histogramValue struct {
	Count   string          `mapstructure:"count"`
	Sum     string          `mapstructure:"sum"`
	Buckets [][]interface{} `mapstructure:"buckets"`
}

// Query runs an instant query and returns its first result as a Record.
// metricType selects how the result is decoded: "histogram" expects a native
// histogram, anything else a scalar sample.
func (c *Client) Query(ctx context.Context, query, metricType string) (exposition.Record, error) {
	s, err := c.query(ctx, query)
	if err != nil {
		return exposition.Record{}, err
	}

	if metricType == "histogram" {
		buckets, err := decodeNativeHistogram(s)
		if err != nil {
			return exposition.Record{}, errors.Wrapf(err, "query %s", query)
		}
		return exposition.Record{Name: query, Labels: s.Metric, Buckets: buckets}, nil
	}

	value, err := decodeScalar(s)
	if err != nil {
		return exposition.Record{}, errors.Wrapf(err, "query %s", query)
	}
	return exposition.NewScalar(query, value, s.Metric), nil
}

func (c *Client) query(ctx context.Context, query string) (*sample, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := url.URL{
		Scheme:   "http",
		Host:     c.addr,
		Path:     "/api/v1/query",
		RawQuery: url.Values{"query": []string{query}}.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "invalid query request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "query request failed, query: %s", query)
	}
	defer resp.Body.Close()

	if resp.StatusCode > 299 {
		return nil, errors.Errorf("query request failed, query: %s, status_code: %d", query, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read query response")
	}

	r := response{}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, errors.Wrap(err, "failed to decode query response")
	}
	if len(r.Data.Result) == 0 {
		return nil, errors.Errorf("query returned no results: %s", query)
	}

	s := &sample{}
	if err := mapstructure.Decode(r.Data.Result[0], s); err != nil {
		return nil, errors.Wrap(err, "failed to decode query result")
	}
	return s, nil
}

// decodeScalar extracts the scalar of a [ts, "<value>"] pair.
func decodeScalar(s *sample) (float64, error) {
	if len(s.Value) != 2 {
		return 0, fmt.Errorf("expected [ts, value] pair, got %d elements", len(s.Value))
	}
	raw, ok := s.Value[1].(string)
	if !ok {
		return 0, fmt.Errorf("expected string scalar, got %T", s.Value[1])
	}
	return strconv.ParseFloat(raw, 64)
}

// decodeNativeHistogram rebuilds bucket occupancy from a native histogram
// result. Each bucket row is [rank, flag, upper bound, count]; only the
// bound and count matter, and the bound is fed through the same
// value-to-bucket mapping used for exposition counters.
func decodeNativeHistogram(s *sample) (map[float64]float64, error) {
	if len(s.Histogram) != 2 {
		return nil, fmt.Errorf("expected [ts, histogram] pair, got %d elements", len(s.Histogram))
	}

	hv := histogramValue{}
	if err := mapstructure.Decode(s.Histogram[1], &hv); err != nil {
		return nil, errors.Wrap(err, "failed to decode native histogram")
	}

	buckets := make(map[float64]float64, len(hv.Buckets))
	for _, row := range hv.Buckets {
		if len(row) != 4 {
			return nil, fmt.Errorf("expected bucket row of 4 elements, got %d", len(row))
		}
		bound, err := bucketField(row[2])
		if err != nil {
			return nil, errors.Wrap(err, "bad bucket bound")
		}
		count, err := bucketField(row[3])
		if err != nil {
			return nil, errors.Wrap(err, "bad bucket count")
		}
		buckets[exposition.ValueToBucket(bound-1)] = count
	}
	return buckets, nil
}

func bucketField(v interface{}) (float64, error) {
	raw, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("expected string field, got %T", v)
	}
	return strconv.ParseFloat(raw, 64)
}
