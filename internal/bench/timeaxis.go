package bench

// TimeAxis returns the sample times of an n-sample capture at rate samples per
// second. The unit is picked so the capture span reads naturally: "s" for
// spans of a second or more, "ms" down to a millisecond and "µs" below.
func TimeAxis(n int, rate float64) ([]float64, string) {
	if n <= 0 || rate <= 0 {
		return nil, "s"
	}

	span := float64(n) / rate

	unit, scale := "s", 1.0
	switch {
	case span < 1e-3:
		unit, scale = "µs", 1e6
	case span < 1:
		unit, scale = "ms", 1e3
	}

	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i) / rate * scale
	}

	return times, unit
}
