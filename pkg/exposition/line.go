package exposition

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Value lines look like:
//
//	seastar_test_group_counter_1{private="1",shard="0"} 1.000000
//
// The exporter never appends a timestamp field, so the grammar does not
// reserve space for one.
// Format: https://github.com/prometheus/docs/blob/main/content/docs/instrumenting/exposition_formats.md
var valueLinePattern = regexp.MustCompile(`^(\w+)\{([^}]*)\}\s+(\S+)$`)

var (
	// ErrMalformedLine marks a non-blank, non-header line that does not match
	// the value-line grammar. Parsing aborts on the first such line.
	ErrMalformedLine = errors.New("malformed metric line")

	// ErrUnknownHistogramPart marks a value line under an active histogram
	// whose suffix is neither _bucket, _sum nor _count.
	ErrUnknownHistogramPart = errors.New("unknown histogram value")

	// ErrSummaryUnsupported is returned for series declared as summaries.
	ErrSummaryUnsupported = errors.New("unsupported type: summary")
)

// parseValueLine decomposes one value line into metric name, labels and
// value. Label values are kept verbatim, quotes included.
func parseValueLine(line string) (string, map[string]string, float64, error) {
	m := valueLinePattern.FindStringSubmatch(line)
	if m == nil {
		return "", nil, 0, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	value, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return "", nil, 0, fmt.Errorf("%w: bad value in %q", ErrMalformedLine, line)
	}
	return m[1], parseLabels(m[2]), value, nil
}

// parseLabels splits a comma-separated label block on the first '=' of each
// pair. The value token is treated as opaque.
func parseLabels(s string) map[string]string {
	labels := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		labels[key] = value
	}
	return labels
}

// unquote strips the surrounding quotes of a label value token.
func unquote(s string) string {
	return strings.Trim(s, `"`)
}
