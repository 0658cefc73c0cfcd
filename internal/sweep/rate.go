package sweep

// DefaultMinOversampling is the factor applied to the excitation frequency to
// derive the minimum sample rate considered by the selector
const DefaultMinOversampling = 4

// DefaultRateTable lists the digitizer sample rates in samples per second,
// ascending. The device understands them as 20, 32, 50, 64, 100, 128, 200, 500,
// 1000, 2000, 4000, 8000 and 10000 kS/s.
var DefaultRateTable = []float64{
	20_000,
	32_000,
	50_000,
	64_000,
	100_000,
	128_000,
	200_000,
	500_000,
	1_000_000,
	2_000_000,
	4_000_000,
	8_000_000,
	10_000_000,
}

// SelectRate picks the sample rate for an excitation frequency using
// DefaultMinOversampling. See SelectRateWith.
func SelectRate(target float64, table []float64) float64 {
	return SelectRateWith(target, DefaultMinOversampling, table)
}

// SelectRateWith scans the ascending table and returns the largest entry
// strictly below oversampling*target. When no entry is below that minimum the
// lowest entry is returned, so the result is always a table entry. An empty
// table yields 0.
func SelectRateWith(target, oversampling float64, table []float64) float64 {
	if len(table) == 0 {
		return 0
	}

	minimum := oversampling * target

	rate := table[0]
	for _, r := range table {
		if r >= minimum {
			break
		}
		rate = r
	}

	return rate
}
