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

package scrape

import (
	"bytes"
	"context"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Validate fetches the exposition body and runs it through the canonical
// text parser. It catches format violations the checker's own line grammar
// is too narrow to see (bad escaping, duplicate families and the like).
func (c *Client) Validate(ctx context.Context, p Params) ([]*dto.MetricFamily, error) {
	body, err := c.fetch(ctx, p)
	if err != nil {
		return nil, err
	}

	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]*dto.MetricFamily, 0, len(families))
	for name := range families {
		out = append(out, families[name])
	}
	return out, nil
}
