package plot

import (
	"math"
)

// nicePhaseSteps are the tick spacings tried for the phase panel, degrees
var nicePhaseSteps = []float64{1, 2, 5, 10, 15, 30, 45, 90, 180, 360}

type axis struct {
	min, max float64
	log      bool
	step     float64 // linear axes only
}

// decadeAxis spans whole decades around [lo, hi], lo > 0
func decadeAxis(lo, hi float64) axis {
	l := math.Floor(math.Log10(lo))
	h := math.Ceil(math.Log10(hi))
	if h <= l {
		h = l + 1
	}
	return axis{min: math.Pow(10, l), max: math.Pow(10, h), log: true}
}

// linearAxis spans [lo, hi] rounded out to a nice step, with at most maxTicks intervals
func linearAxis(lo, hi float64, maxTicks int) axis {
	span := hi - lo

	step := 360 * math.Ceil(span/(360*float64(maxTicks)))
	for _, s := range nicePhaseSteps {
		if span/s <= float64(maxTicks) {
			step = s
			break
		}
	}

	a := axis{
		min:  math.Floor(lo/step) * step,
		max:  math.Ceil(hi/step) * step,
		step: step,
	}
	if a.max == a.min {
		a.min -= step
		a.max += step
	}
	return a
}

// fraction maps v to [0, 1] along the axis
func (a axis) fraction(v float64) float64 {
	if a.log {
		return (math.Log10(v) - math.Log10(a.min)) / (math.Log10(a.max) - math.Log10(a.min))
	}
	return (v - a.min) / (a.max - a.min)
}

func (a axis) majorTicks() []float64 {
	var ticks []float64

	if a.log {
		lo, hi := a.decades()
		for k := lo; k <= hi; k++ {
			ticks = append(ticks, math.Pow10(k))
		}
		return ticks
	}

	n := int(math.Round((a.max - a.min) / a.step))
	for i := 0; i <= n; i++ {
		ticks = append(ticks, a.min+float64(i)*a.step)
	}
	return ticks
}

// minorTicks returns 2..9 times every decade of a log axis
func (a axis) minorTicks() []float64 {
	if !a.log {
		return nil
	}

	var ticks []float64
	lo, hi := a.decades()
	for k := lo; k < hi; k++ {
		for m := 2.0; m <= 9; m++ {
			ticks = append(ticks, m*math.Pow10(k))
		}
	}
	return ticks
}

// decades returns the exponents of the first and last decade of a log axis
func (a axis) decades() (int, int) {
	return int(math.Round(math.Log10(a.min))), int(math.Round(math.Log10(a.max)))
}
