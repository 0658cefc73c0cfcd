package sweep

import (
	"time"

	"github.com/roman-kulish/bodeplot/internal/analysis"
)

// Record is the measurement taken at one frequency point
type Record struct {
	Step       int     // Zero-based index in the sweep
	Frequency  float64 // Commanded excitation frequency, Hz
	SampleRate float64 // Digitizer rate used for the capture, S/s
	RMSOutput  float64 // Channel 1 (filter output) RMS amplitude, V
	RMSInput   float64 // Channel 2 (filter input) RMS amplitude, V
	Gain       float64 // RMSOutput / RMSInput
	PhaseDiff  float64 // Output phase relative to input, radians in (-π, π]

	Output ChannelSummary
	Input  ChannelSummary
}

// ChannelSummary carries the per-channel statistics kept alongside a record
type ChannelSummary struct {
	DC                   float64 // Mean voltage
	FundamentalFrequency float64 // Frequency of the strongest non-DC FFT bin, Hz
	FundamentalMagnitude float64 // Normalized magnitude of that bin
}

func newRecord(step int, frequency, sampleRate float64, res analysis.Result) Record {
	return Record{
		Step:       step,
		Frequency:  frequency,
		SampleRate: sampleRate,
		RMSOutput:  res.Output.RMS,
		RMSInput:   res.Input.RMS,
		Gain:       res.Gain,
		PhaseDiff:  res.PhaseDiff,
		Output:     summarize(res.Output),
		Input:      summarize(res.Input),
	}
}

func summarize(c analysis.Channel) ChannelSummary {
	return ChannelSummary{
		DC:                   c.DC,
		FundamentalFrequency: c.Fundamental.Frequency,
		FundamentalMagnitude: c.Fundamental.Magnitude,
	}
}

// Capture is the calibrated waveform pair acquired at one step, after the
// leading samples were skipped. It is only valid during an observer call.
type Capture struct {
	Step       int
	Frequency  float64
	SampleRate float64
	Times      []float64 // Sample times in TimeUnit
	TimeUnit   string
	Output     []float64     // Channel 1 voltages
	Input      []float64     // Channel 2 voltages
	Elapsed    time.Duration // Time spent in the digitizer Capture call
}

// Observer is notified after every successful step. It runs on the sweep
// goroutine and must not retain the capture slices.
type Observer func(rec Record, capture *Capture)
