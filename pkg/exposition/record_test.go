package exposition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEqual_IgnoresNameAndLabels(t *testing.T) {
	a := Record{
		Name:    "seastar_test_group_histogram_1",
		Labels:  map[string]string{"shard": `"0"`},
		Buckets: map[float64]float64{3: 3, 14: 2},
	}
	b := Record{
		Name:    "something_else",
		Labels:  map[string]string{},
		Buckets: map[float64]float64{3: 3, 14: 2},
	}
	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))

	c := b
	c.Buckets = map[float64]float64{3: 3, 14: 1}
	assert.False(t, a.Equal(c))

	d := b
	d.Buckets = map[float64]float64{3: 3}
	assert.False(t, a.Equal(d))
}

func TestRecordEqual_Scalar(t *testing.T) {
	a := NewScalar("seastar_test_group_counter_1", 3, map[string]string{"shard": `"0"`})
	b := NewScalar("seastar_test_group_counter_1", 3, nil)
	c := NewScalar("seastar_test_group_counter_1", 4, nil)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestRecordEqual_ScalarVersusHistogram(t *testing.T) {
	scalar := NewScalar("m", 3, nil)
	hist := FromSamples("m", []float64{3, 3, 3})

	assert.False(t, scalar.Equal(hist))
	assert.False(t, hist.Equal(scalar))
}

func TestFromSamples(t *testing.T) {
	// 510 and 511 share the [448, 512) sub-bucket, 520 lands on 512.
	r := FromSamples("m", []float64{510, 511, 520})

	require.True(t, r.IsHistogram())
	assert.Equal(t, map[float64]float64{448: 2, 512: 1}, r.Buckets)
}

func TestFromCumulative_SkipsZeroDeltaBuckets(t *testing.T) {
	pairs := []bucketPair{
		{le: 4, cumulative: 3},
		{le: 16, cumulative: 5},
	}
	r := fromCumulative("m", pairs)

	require.True(t, r.IsHistogram())
	assert.Equal(t, map[float64]float64{
		ValueToBucket(4 - 1):  3,
		ValueToBucket(16 - 1): 2,
	}, r.Buckets)
}
