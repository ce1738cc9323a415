package exposition

import (
	"fmt"
	"sort"
	"strings"
)

// Record is a single parsed measurement: a named, labeled value that is
// either a scalar (gauge/counter) or a histogram rebuilt as per-bucket
// occupancy keyed by canonical bucket edge.
type Record struct {
	Name   string
	Labels map[string]string

	// Value holds the scalar for gauge/counter records.
	Value float64
	// Buckets is non-nil for histogram records. Only buckets with non-zero
	// occupancy are present.
	Buckets map[float64]float64
}

// NewScalar returns a scalar record.
func NewScalar(name string, value float64, labels map[string]string) Record {
	return Record{Name: name, Value: value, Labels: labels}
}

// FromSamples rebuilds a histogram record from raw sample values, counting
// occupancy per canonical bucket.
func FromSamples(name string, values []float64) Record {
	buckets := make(map[float64]float64, len(values))
	for _, v := range values {
		buckets[ValueToBucket(v)]++
	}
	return Record{Name: name, Labels: map[string]string{}, Buckets: buckets}
}

// fromCumulative rebuilds a histogram record from (upper bound, cumulative
// count) pairs collected in exposition order. Occupancy is the difference
// between consecutive cumulative counts, and each upper bound is mapped back
// to the bucket that produced it. The off-by-one corrects for the exporter's
// inclusive le-style bounds.
func fromCumulative(name string, pairs []bucketPair) Record {
	buckets := make(map[float64]float64, len(pairs))
	var last float64
	for _, p := range pairs {
		buckets[ValueToBucket(p.le-1)] = p.cumulative - last
		last = p.cumulative
	}
	return Record{Name: name, Labels: map[string]string{}, Buckets: buckets}
}

// IsHistogram reports whether the record carries per-bucket occupancy
// instead of a scalar.
func (r Record) IsHistogram() bool {
	return r.Buckets != nil
}

// Equal compares records by value only. Name and labels are informational:
// two reconstructions of the same histogram may disagree on both and still
// describe the same bucket occupancy.
func (r Record) Equal(other Record) bool {
	if r.IsHistogram() != other.IsHistogram() {
		return false
	}
	if !r.IsHistogram() {
		return r.Value == other.Value
	}
	if len(r.Buckets) != len(other.Buckets) {
		return false
	}
	for edge, n := range r.Buckets {
		if m, ok := other.Buckets[edge]; !ok || m != n {
			return false
		}
	}
	return true
}

func (r Record) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%v ", r.Name, r.Labels)
	if !r.IsHistogram() {
		fmt.Fprintf(&sb, "%v", r.Value)
		return sb.String()
	}
	edges := make([]float64, 0, len(r.Buckets))
	for edge := range r.Buckets {
		edges = append(edges, edge)
	}
	sort.Float64s(edges)
	sb.WriteByte('{')
	for i, edge := range edges {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%v: %v", edge, r.Buckets[edge])
	}
	sb.WriteByte('}')
	return sb.String()
}
