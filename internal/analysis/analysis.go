// Package analysis extracts the frequency response of a filter at a single
// excitation frequency from a pair of simultaneously captured waveforms.
//
// Channel 1 carries the filter output and channel 2 the filter input. For each
// channel the analyzer reports DC offset, RMS amplitude and the fundamental
// (the largest non-DC FFT bin) with its magnitude and phase. The gain is the
// ratio of RMS amplitudes and the phase difference is taken between the two
// fundamentals.
//
// The fundamental is trusted as the largest-magnitude non-DC bin. This is a
// precondition on the input: a single-tone excitation whose fundamental clearly
// dominates harmonics and noise. It is not validated here.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinSamples is the shortest capture that has at least one non-DC bin below N/2
const MinSamples = 4

// rmsTolerance is the RMS, relative to the channel peak, reported as zero
const rmsTolerance = 1e-12

var (
	// ErrUndefinedGain is returned when the reference (input) channel RMS is zero
	ErrUndefinedGain = errors.New("undefined gain: reference channel RMS is zero")

	// ErrDegenerateInput is returned for captures that cannot be analyzed
	ErrDegenerateInput = errors.New("degenerate input")
)

const (
	// RMSModeCompat reports sqrt(mean(v²)) - mean(v). This is not the AC RMS of
	// the signal: it only matches it when the DC offset is zero, and a negative
	// offset inflates the result. It is the default because recorded gain
	// values depend on it.
	RMSModeCompat RMSMode = "compat"

	// RMSModeAC reports the true AC RMS sqrt(mean((v - mean(v))²)).
	RMSModeAC RMSMode = "ac"
)

// RMSMode selects how channel RMS amplitude is computed
type RMSMode string

func (m RMSMode) String() string {
	return string(m)
}

// Validate returns an error for unknown modes. The empty mode is accepted and
// means RMSModeCompat.
func (m RMSMode) Validate() error {
	switch m {
	case "", RMSModeCompat, RMSModeAC:
		return nil
	default:
		return fmt.Errorf("analysis: unknown RMS mode: %q", string(m))
	}
}

// Fundamental describes the largest non-DC bin of a channel spectrum
type Fundamental struct {
	Bin       int     // FFT bin index in [1, N/2)
	Frequency float64 // Bin frequency in Hz
	Magnitude float64 // |X[k]| / N
	Phase     float64 // arg(X[k]) in radians
}

// Channel holds the statistics of one captured channel
type Channel struct {
	DC          float64 // Mean of the samples
	RMS         float64 // RMS amplitude per the analyzer's RMSMode
	Fundamental Fundamental
}

// Result is the frequency response extracted from one capture pair
type Result struct {
	Output    Channel // Channel 1, filter output
	Input     Channel // Channel 2, filter input
	Gain      float64 // Output.RMS / Input.RMS
	PhaseDiff float64 // Output phase relative to input, wrapped into (-π, π]
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithRMSMode selects the RMS computation
func WithRMSMode(mode RMSMode) Option {
	return func(a *Analyzer) {
		if mode != "" {
			a.rmsMode = mode
		}
	}
}

// Analyzer computes frequency response results. It keeps the FFT plan of the
// last capture length, so an Analyzer must not be used concurrently.
type Analyzer struct {
	rmsMode RMSMode

	fft    *fourier.FFT
	coeffs []complex128
}

// NewAnalyzer creates an Analyzer, RMSModeCompat unless configured otherwise
func NewAnalyzer(options ...Option) *Analyzer {
	a := Analyzer{rmsMode: RMSModeCompat}

	for _, option := range options {
		option(&a)
	}

	return &a
}

// Analyze is a one-shot analysis with a fresh Analyzer
func Analyze(ch1, ch2 []float64, sampleRate float64, options ...Option) (Result, error) {
	return NewAnalyzer(options...).Analyze(ch1, ch2, sampleRate)
}

// Analyze extracts RMS, DC, fundamental and the gain/phase relation of ch1
// (output) to ch2 (input) sampled at sampleRate samples per second.
func (a *Analyzer) Analyze(ch1, ch2 []float64, sampleRate float64) (Result, error) {
	if err := validate(ch1, ch2, sampleRate); err != nil {
		return Result{}, err
	}

	var res Result
	res.Output = a.channel(ch1, sampleRate)
	res.Input = a.channel(ch2, sampleRate)

	if res.Input.RMS == 0 {
		return res, ErrUndefinedGain
	}

	res.Gain = res.Output.RMS / res.Input.RMS
	if math.IsNaN(res.Gain) || math.IsInf(res.Gain, 0) {
		return res, fmt.Errorf("%w: gain %v", ErrUndefinedGain, res.Gain)
	}

	res.PhaseDiff = WrapPhase(res.Output.Fundamental.Phase - res.Input.Fundamental.Phase)

	return res, nil
}

func validate(ch1, ch2 []float64, sampleRate float64) error {
	if len(ch1) != len(ch2) {
		return fmt.Errorf("%w: channel length mismatch: %d != %d", ErrDegenerateInput, len(ch1), len(ch2))
	}
	if len(ch1) < MinSamples {
		return fmt.Errorf("%w: need at least %d samples per channel, got %d", ErrDegenerateInput, MinSamples, len(ch1))
	}
	if sampleRate <= 0 || math.IsInf(sampleRate, 0) || math.IsNaN(sampleRate) {
		return fmt.Errorf("%w: invalid sample rate: %v", ErrDegenerateInput, sampleRate)
	}
	for _, ch := range [][]float64{ch1, ch2} {
		if floats.HasNaN(ch) {
			return fmt.Errorf("%w: NaN sample", ErrDegenerateInput)
		}
		for _, v := range ch {
			if math.IsInf(v, 0) {
				return fmt.Errorf("%w: infinite sample", ErrDegenerateInput)
			}
		}
	}
	return nil
}

func (a *Analyzer) channel(v []float64, sampleRate float64) Channel {
	dc := stat.Mean(v, nil)

	var rms float64
	switch a.rmsMode {
	case RMSModeAC:
		var sum float64
		for _, x := range v {
			d := x - dc
			sum += d * d
		}
		rms = math.Sqrt(sum / float64(len(v)))

	default:
		rms = math.Sqrt(floats.Dot(v, v)/float64(len(v))) - dc
	}

	// rounding leaves a residue of a few ulps on a DC-only channel
	if peak := floats.Norm(v, math.Inf(1)); rms <= rmsTolerance*peak {
		rms = 0
	}

	return Channel{
		DC:          dc,
		RMS:         rms,
		Fundamental: a.fundamental(v, sampleRate),
	}
}

// fundamental finds the largest bin in [1, N/2) of the real FFT of v
func (a *Analyzer) fundamental(v []float64, sampleRate float64) Fundamental {
	n := len(v)
	if a.fft == nil || a.fft.Len() != n {
		a.fft = fourier.NewFFT(n)
		a.coeffs = make([]complex128, n/2+1)
	}

	coeffs := a.fft.Coefficients(a.coeffs, v)

	best := 1
	bestMag := cmplx.Abs(coeffs[1])
	for k := 2; k < n/2; k++ {
		if mag := cmplx.Abs(coeffs[k]); mag > bestMag {
			best, bestMag = k, mag
		}
	}

	return Fundamental{
		Bin:       best,
		Frequency: float64(best) * sampleRate / float64(n),
		Magnitude: bestMag / float64(n),
		Phase:     cmplx.Phase(coeffs[best]),
	}
}

// WrapPhase folds a phase difference of two wrapped phases, which lies in
// (-2π, 2π), into (-π, π] by adding or subtracting 2π once.
func WrapPhase(d float64) float64 {
	switch {
	case d > math.Pi:
		return d - 2*math.Pi
	case d <= -math.Pi:
		return d + 2*math.Pi
	}
	return d
}

// UnwrapPhase returns a new phase slice with +/-2π discontinuities between
// consecutive values removed.
func UnwrapPhase(phase []float64) []float64 {
	if len(phase) == 0 {
		return nil
	}
	out := make([]float64, len(phase))
	out[0] = phase[0]
	offset := 0.0
	for i := 1; i < len(phase); i++ {
		d := phase[i] - phase[i-1]
		switch {
		case d > math.Pi:
			offset -= 2 * math.Pi
		case d < -math.Pi:
			offset += 2 * math.Pi
		}
		out[i] = phase[i] + offset
	}
	return out
}
