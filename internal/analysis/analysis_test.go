package analysis

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, fs, freq, amp, phase, dc float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = dc + amp*math.Sin(2*math.Pi*freq*float64(i)/fs+phase)
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// angularDistance is the absolute difference of two angles on the circle
func angularDistance(a, b float64) float64 {
	return math.Abs(math.Remainder(a-b, 2*math.Pi))
}

func TestAnalyze_RoundTrip(t *testing.T) {
	const (
		n    = 1000
		fs   = 1000.0
		freq = 50.0
	)

	phases := []float64{-3, -1.2, 0, 0.4, 2.5}
	for _, a1 := range []float64{0.1, 1, 3.3} {
		for _, a2 := range []float64{0.5, 2} {
			for _, phi0 := range phases {
				for d := -3 * math.Pi / 2; d <= 3*math.Pi/2; d += math.Pi / 8 {
					ch2 := sine(n, fs, freq, a2, phi0, 0)
					ch1 := sine(n, fs, freq, a1, phi0+d, 0)

					res, err := Analyze(ch1, ch2, fs)
					require.NoError(t, err)

					assert.InDelta(t, a1/a2, res.Gain, 1e-9, "a1=%v a2=%v", a1, a2)
					assert.Less(t, angularDistance(res.PhaseDiff, d), 1e-9, "phi0=%v d=%v got=%v", phi0, d, res.PhaseDiff)
					assert.Greater(t, res.PhaseDiff, -math.Pi)
					assert.LessOrEqual(t, res.PhaseDiff, math.Pi)
				}
			}
		}
	}
}

func TestAnalyze_Fundamental(t *testing.T) {
	const (
		n  = 1000
		fs = 1000.0
	)

	ch := sine(n, fs, 50, 2, 0.3, 0)
	harmonic := sine(n, fs, 150, 0.2, 0, 0)
	for i := range ch {
		ch[i] += harmonic[i]
	}
	ref := sine(n, fs, 50, 1, 0, 0)

	res, err := Analyze(ch, ref, fs)
	require.NoError(t, err)

	assert.Equal(t, 50, res.Output.Fundamental.Bin)
	assert.InDelta(t, 50.0, res.Output.Fundamental.Frequency, 1e-12)
	assert.InDelta(t, 1.0, res.Output.Fundamental.Magnitude, 1e-9)
	assert.InDelta(t, 0.5, res.Input.Fundamental.Magnitude, 1e-9)
	assert.InDelta(t, 0.3-math.Pi/2, res.Output.Fundamental.Phase, 1e-9)
}

func TestAnalyze_ZeroReference(t *testing.T) {
	ch1 := sine(1024, 1000, 50, 1, 0, 0)
	ch2 := constant(1024, 0)

	_, err := Analyze(ch1, ch2, 1000)
	require.ErrorIs(t, err, ErrUndefinedGain)
}

func TestAnalyze_DCOnly(t *testing.T) {
	ref := sine(1000, 1000, 50, 1, 0, 0)

	t.Run("compat positive offset", func(t *testing.T) {
		res, err := Analyze(constant(1000, 0.5), ref, 1000)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, res.Output.RMS, 1e-12)
		assert.InDelta(t, 0.5, res.Output.DC, 1e-12)
		assert.InDelta(t, 0.0, res.Gain, 1e-12)
	})

	t.Run("compat negative offset", func(t *testing.T) {
		res, err := Analyze(constant(1000, -0.5), ref, 1000)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, res.Output.RMS, 1e-12)
	})

	t.Run("ac", func(t *testing.T) {
		res, err := Analyze(constant(1000, -0.5), ref, 1000, WithRMSMode(RMSModeAC))
		require.NoError(t, err)
		assert.InDelta(t, 0.0, res.Output.RMS, 1e-12)
	})

	for _, dc := range []float64{0.25, 0.1, 0.3, 0.7} {
		t.Run(fmt.Sprintf("reference %v", dc), func(t *testing.T) {
			res, err := Analyze(ref, constant(1000, dc), 1000)
			require.ErrorIs(t, err, ErrUndefinedGain)
			assert.Zero(t, res.Input.RMS)
			assert.Zero(t, res.Gain)
		})

		t.Run(fmt.Sprintf("reference %v ac", dc), func(t *testing.T) {
			_, err := Analyze(ref, constant(1000, dc), 1000, WithRMSMode(RMSModeAC))
			require.ErrorIs(t, err, ErrUndefinedGain)
		})

		t.Run(fmt.Sprintf("output %v", dc), func(t *testing.T) {
			res, err := Analyze(constant(1000, dc), ref, 1000)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.Output.RMS, 0.0)
			assert.GreaterOrEqual(t, res.Gain, 0.0)
		})
	}
}

func TestAnalyze_RMSModes(t *testing.T) {
	ch1 := sine(1000, 1000, 50, 1, 0, 0.2)
	ch2 := sine(1000, 1000, 50, 1, 0, 0)

	compat, err := Analyze(ch1, ch2, 1000)
	require.NoError(t, err)
	ac, err := Analyze(ch1, ch2, 1000, WithRMSMode(RMSModeAC))
	require.NoError(t, err)

	assert.InDelta(t, math.Sqrt(0.5+0.04)-0.2, compat.Output.RMS, 1e-9)
	assert.InDelta(t, math.Sqrt(0.5), ac.Output.RMS, 1e-9)
	assert.InDelta(t, 1.0, ac.Gain, 1e-9)
}

func TestAnalyze_Degenerate(t *testing.T) {
	good := sine(16, 16, 2, 1, 0, 0)

	tests := []struct {
		name     string
		ch1, ch2 []float64
		fs       float64
	}{
		{"too short", good[:3], good[:3], 16},
		{"length mismatch", good, good[:8], 16},
		{"zero rate", good, good, 0},
		{"negative rate", good, good, -1},
		{"infinite rate", good, good, math.Inf(1)},
		{"nan sample", append([]float64{math.NaN()}, good[1:]...), good, 16},
		{"inf sample", good, append([]float64{math.Inf(-1)}, good[1:]...), 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze(tt.ch1, tt.ch2, tt.fs)
			require.ErrorIs(t, err, ErrDegenerateInput)
		})
	}
}

func TestAnalyzer_Reuse(t *testing.T) {
	a := NewAnalyzer()

	for _, n := range []int{1000, 500, 1000} {
		ch1 := sine(n, 1000, 100, 2, 0, 0)
		ch2 := sine(n, 1000, 100, 1, 0, 0)

		res, err := a.Analyze(ch1, ch2, 1000)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, res.Gain, 1e-9)
		assert.InDelta(t, 100.0, res.Input.Fundamental.Frequency, 1e-9)
	}
}

func TestRMSMode_Validate(t *testing.T) {
	assert.NoError(t, RMSMode("").Validate())
	assert.NoError(t, RMSModeCompat.Validate())
	assert.NoError(t, RMSModeAC.Validate())
	assert.Error(t, RMSMode("peak").Validate())
}

func TestWrapPhase(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{1, 1},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, WrapPhase(tt.in), 1e-12, "in=%v", tt.in)
	}
}

func TestUnwrapPhase(t *testing.T) {
	assert.Nil(t, UnwrapPhase(nil))

	want := make([]float64, 40)
	wrapped := make([]float64, len(want))
	for i := range want {
		want[i] = 1 - 0.5*float64(i)
		wrapped[i] = math.Remainder(want[i], 2*math.Pi)
	}

	got := UnwrapPhase(wrapped)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "i=%d", i)
	}
}
