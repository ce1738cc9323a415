package exposition

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Metrics holds one scrape of Prometheus text exposition output and answers
// queries over it. Every query is a fresh pass over the stored lines; the
// type keeps no state between calls, so concurrent queries over different
// Metrics values need no locking.
type Metrics struct {
	lines []string
}

// New splits a raw exposition body into lines. Trailing newlines are
// dropped.
func New(body string) *Metrics {
	return NewFromLines(strings.Split(strings.TrimRight(body, "\n"), "\n"))
}

// NewFromLines wraps an already split line sequence.
func NewFromLines(lines []string) *Metrics {
	return &Metrics{lines: lines}
}

// bucketPair is one cumulative histogram bucket line in arrival order.
type bucketPair struct {
	le         float64
	cumulative float64
}

// histAccum collects the multi-line state of one histogram series until the
// next # TYPE header or the end of the stream flushes it. Sum and count are
// recorded but never cross-checked against the bucket total.
type histAccum struct {
	name  string
	pairs []bucketPair
	sum   float64
	count float64
}

func (h *histAccum) flush() Record {
	return fromCumulative(h.name, h.pairs)
}

// Query walks the exposition lines and returns one Record per logical
// metric. A non-empty fullName keeps only value lines whose metric name
// starts with it; a non-nil labels map keeps only lines whose label set is
// exactly equal to it. Histogram series spanning multiple lines are
// accumulated and emitted as a single Record with per-bucket occupancy.
func (m *Metrics) Query(fullName string, labels map[string]string) ([]Record, error) {
	var (
		records    []Record
		metricType string
		familyName string
		hist       histAccum
	)

	for _, line := range m.lines {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "# HELP") {
			continue
		}
		if strings.HasPrefix(line, "# TYPE") {
			fields := strings.Fields(line)
			if len(fields) != 4 {
				return nil, fmt.Errorf("%w: %q", ErrMalformedLine, line)
			}
			if len(hist.pairs) > 0 {
				records = append(records, hist.flush())
			}
			hist = histAccum{}
			familyName = fields[2]
			metricType = fields[3]
			if metricType == "histogram" || metricType == "summary" {
				hist.name = familyName
			}
			continue
		}

		name, lineLabels, value, err := parseValueLine(line)
		if err != nil {
			return nil, err
		}
		if fullName != "" && !strings.HasPrefix(name, fullName) {
			continue
		}
		if labels != nil && !maps.Equal(lineLabels, labels) {
			continue
		}

		switch metricType {
		case "histogram":
			switch name {
			case hist.name + "_bucket":
				var last float64
				if n := len(hist.pairs); n > 0 {
					last = hist.pairs[n-1].cumulative
				}
				// A flat cumulative region carries no occupancy.
				if value-last != 0 {
					le, err := strconv.ParseFloat(unquote(lineLabels["le"]), 64)
					if err != nil {
						return nil, fmt.Errorf("%w: bad le bound in %q", ErrMalformedLine, line)
					}
					hist.pairs = append(hist.pairs, bucketPair{le: le, cumulative: value})
				}
			case hist.name + "_sum":
				hist.sum = value
			case hist.name + "_count":
				hist.count = value
			default:
				return nil, fmt.Errorf("%w: %q", ErrUnknownHistogramPart, line)
			}
		case "summary":
			return nil, fmt.Errorf("%w: %q", ErrSummaryUnsupported, line)
		default:
			records = append(records, NewScalar(familyName, value, lineLabels))
		}
	}

	if len(hist.pairs) > 0 {
		records = append(records, hist.flush())
	}
	return records, nil
}

// HelpText returns the free text of the first # HELP header declared for
// exactly fullName. The bool distinguishes a missing HELP line from an empty
// help text.
func (m *Metrics) HelpText(fullName string) (string, bool) {
	header := "# HELP " + fullName + " "
	for _, line := range m.lines {
		if strings.HasPrefix(line, header) {
			return strings.TrimPrefix(line, header), true
		}
	}
	return "", false
}
