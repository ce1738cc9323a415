package exposition

import (
	"fmt"
	"math"
)

// ValueToBucket maps a raw sample value to the canonical lower edge of the
// bucket that holds it. Each power-of-two octave [low, 2*low) is divided into
// four equal sub-buckets and the value snaps to its sub-bucket's lower edge.
//
// Histograms rebuilt from cumulative exposition counters and histograms
// rebuilt from raw sample values both go through this mapping, which is what
// makes the two reconstructions comparable.
//
// The value must be positive. A zero or negative value indicates a producer
// bug upstream and must not be masked.
func ValueToBucket(value float64) float64 {
	if value <= 0 {
		panic(fmt.Sprintf("exposition: non-positive value %v has no bucket", value))
	}
	low := math.Pow(2, math.Floor(math.Log2(value)))
	high := 2 * low
	step := (high - low) / 4
	return low + step*math.Floor((value-low)/step)
}
