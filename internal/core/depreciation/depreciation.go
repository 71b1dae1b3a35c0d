// Package depreciation computes straight-line depreciated values.
package depreciation

import (
	"math"
	"time"
)

// Year is the length of a depreciation year.
const Year = time.Duration(365.25 * 24 * float64(time.Hour))

// CurrentValue returns the straight-line depreciated value of an asset at asOf.
//
// No depreciation is applied when the acquisition date is unknown, the value is
// not positive, or the rate is negative. The elapsed interval is taken in
// absolute value so a clock skewed behind the acquisition date still yields a
// sensible figure. The result is floored at zero.
func CurrentValue(value float64, acquired time.Time, ratePercent float64, asOf time.Time) float64 {
	if acquired.IsZero() || value <= 0 || ratePercent < 0 {
		return value
	}

	years := elapsedYears(acquired, asOf)

	depreciated := value * (ratePercent / 100) * years
	return math.Max(0, value-depreciated)
}

// elapsedYears measures the absolute interval between two instants in years.
// It works from Unix seconds because time.Duration saturates near 292 years.
func elapsedYears(from, to time.Time) float64 {
	seconds := float64(to.Unix()-from.Unix()) + float64(to.Nanosecond()-from.Nanosecond())/1e9
	return math.Abs(seconds) / Year.Seconds()
}
