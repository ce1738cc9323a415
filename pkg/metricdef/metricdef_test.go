package metricdef

import (
	"testing"

	"checker/pkg/exposition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	conf, err := Load("testdata/conf.yaml")
	require.NoError(t, err)

	require.Len(t, conf.Metrics, 4)
	assert.Equal(t, "counter_1", conf.Metrics[0].Name)
	assert.Equal(t, "counter", conf.Metrics[0].Type)
	assert.Equal(t, []float64{1}, conf.Metrics[0].Values)
	assert.Equal(t, map[string]string{"private": "1"}, conf.Metrics[0].Labels)

	require.Len(t, conf.FamilyConfigs, 1)
	assert.Equal(t, "seastar_test_group_.*", conf.FamilyConfigs[0].RegexName)
	assert.Equal(t, []string{"shard"}, conf.FamilyConfigs[0].AggregateLabels)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/does-not-exist.yaml")
	require.Error(t, err)
}

func TestMetricRecord_Scalar(t *testing.T) {
	def := Metric{
		Name:   "counter_1",
		Type:   "counter",
		Values: []float64{1},
		Labels: map[string]string{"private": "1"},
	}

	expected, err := def.Record("seastar_test_group_counter_1")
	require.NoError(t, err)

	// matches a live-parsed record with the same value, whatever the label
	// dictionary looks like on either side
	body := `# TYPE seastar_test_group_counter_1 counter
seastar_test_group_counter_1{shard="0",private="1"} 1.000000
`
	records, qerr := exposition.New(body).Query("", nil)
	require.NoError(t, qerr)
	require.Len(t, records, 1)
	assert.True(t, expected.Equal(records[0]))
}

func TestMetricRecord_Histogram(t *testing.T) {
	def := Metric{
		Name:   "histogram_1",
		Type:   "histogram",
		Values: []float64{3, 3, 3, 15, 15},
	}

	expected, err := def.Record("seastar_test_group_histogram_1")
	require.NoError(t, err)
	require.True(t, expected.IsHistogram())
	assert.Equal(t, map[float64]float64{3: 3, 14: 2}, expected.Buckets)
}

func TestMetricRecord_Errors(t *testing.T) {
	_, err := Metric{Name: "g", Type: "gauge", Values: []float64{1, 2}}.Record("g")
	require.Error(t, err)

	_, err = Metric{Name: "s", Type: "summary", Values: []float64{1}}.Record("s")
	require.Error(t, err)
}
