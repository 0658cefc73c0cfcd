// Package sim is a software bench: a sine generator feeding a first-order RC
// filter, observed by an ideal two-channel digitizer. Raw samples are
// microvolts.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"sync"

	"github.com/roman-kulish/bodeplot/internal/bench"
	"github.com/roman-kulish/bodeplot/internal/bench/driver"
)

const (
	Device = "sim"

	FilterLowPass  Filter = "lowpass"
	FilterHighPass Filter = "highpass"
	FilterWire     Filter = "wire"

	DefaultCutoffFrequency = 1000.0
	DefaultAmplitude       = 0.5

	microvolt = 1e-6
)

var ErrClosed = errors.New("sim: bench is closed")

type Filter string

func (f Filter) String() string {
	return string(f)
}

// Config describes the simulated filter and excitation
type Config struct {
	Filter          Filter  `yaml:"filter"`          // lowpass, highpass or wire (default: lowpass)
	CutoffFrequency float64 `yaml:"cutoffFrequency"` // -3 dB frequency, Hz (default: 1000)
	Amplitude       float64 `yaml:"amplitude"`       // Excitation peak amplitude, V (default: 0.5)
	DCOffset        float64 `yaml:"dcOffset"`        // Excitation DC offset, V
	Noise           float64 `yaml:"noise"`           // Gaussian noise RMS added to each channel, V
	Phase           float64 `yaml:"phase"`           // Excitation phase at the first sample, rad
	Seed            uint64  `yaml:"seed"`            // Noise seed
}

func (c *Config) filter() Filter {
	if c.Filter == "" {
		return FilterLowPass
	}
	return c.Filter
}

func (c *Config) cutoff() float64 {
	if c.CutoffFrequency == 0 {
		return DefaultCutoffFrequency
	}
	return c.CutoffFrequency
}

func (c *Config) amplitude() float64 {
	if c.Amplitude == 0 {
		return DefaultAmplitude
	}
	return c.Amplitude
}

func (c *Config) Validate() error {
	switch c.filter() {
	case FilterLowPass, FilterHighPass, FilterWire:
	default:
		return driver.NewConfigError(Device, "unknown filter: %q", c.Filter)
	}
	if !(c.cutoff() > 0) || math.IsInf(c.CutoffFrequency, 0) {
		return driver.NewConfigError(Device, "cutoff frequency must be positive: %v", c.CutoffFrequency)
	}
	if !(c.amplitude() > 0) || math.IsInf(c.Amplitude, 0) {
		return driver.NewConfigError(Device, "amplitude must be positive: %v", c.Amplitude)
	}
	if math.IsNaN(c.DCOffset) || math.IsInf(c.DCOffset, 0) {
		return driver.NewConfigError(Device, "invalid DC offset: %v", c.DCOffset)
	}
	if math.IsNaN(c.Noise) || c.Noise < 0 {
		return driver.NewConfigError(Device, "noise must not be negative: %v", c.Noise)
	}
	return nil
}

// Response returns the complex transfer function of the filter at hz
func (c *Config) Response(hz float64) complex128 {
	s := complex(0, hz/c.cutoff())

	switch c.filter() {
	case FilterLowPass:
		return 1 / (1 + s)
	case FilterHighPass:
		return s / (1 + s)
	default:
		return 1
	}
}

// Bench implements both bench.Generator and bench.Digitizer
type Bench struct {
	config Config

	mu        sync.Mutex
	frequency float64
	rate      float64
	playing   bool
	coupling  [2]bench.Coupling
	closed    bool
	rng       *rand.Rand
}

func New(config *Config) (*Bench, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Bench{
		config:   *config,
		coupling: [2]bench.Coupling{bench.CouplingDC, bench.CouplingDC},
		rng:      rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (b *Bench) SetFrequency(ctx context.Context, hz float64) error {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return bench.AcquisitionError(Device, "set frequency", fmt.Errorf("invalid frequency: %v", hz))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.frequency = hz
	return nil
}

func (b *Bench) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return bench.AcquisitionError(Device, "start", ErrClosed)
	}

	b.playing = true
	return nil
}

func (b *Bench) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.playing = false
	return nil
}

func (b *Bench) ConfigureChannel(ch bench.Channel, gain int, coupling bench.Coupling) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return bench.AcquisitionError(Device, "configure channel", ErrClosed)
	}
	if gain <= 0 {
		return bench.AcquisitionError(Device, "configure channel", fmt.Errorf("invalid gain: %d", gain))
	}

	switch ch {
	case bench.ChannelOutput:
		b.coupling[0] = coupling
	case bench.ChannelInput:
		b.coupling[1] = coupling
	default:
		return bench.AcquisitionError(Device, "configure channel", fmt.Errorf("unknown channel: %s", ch))
	}

	return nil
}

func (b *Bench) SetSampleRate(rate float64) error {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return bench.AcquisitionError(Device, "set sample rate", fmt.Errorf("invalid sample rate: %v", rate))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rate = rate
	return nil
}

// Capture synthesizes n samples of the filter output (CH1) and input (CH2).
// A stopped generator yields silence apart from offset and noise.
func (b *Bench) Capture(ctx context.Context, n int) ([]float64, []float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, bench.AcquisitionError(Device, "capture", ErrClosed)
	}
	if b.rate == 0 {
		return nil, nil, bench.AcquisitionError(Device, "capture", errors.New("sample rate not set"))
	}

	amplitude := 0.0
	if b.playing && b.frequency > 0 {
		amplitude = b.config.amplitude()
	}

	h := b.config.Response(b.frequency)
	gain, shift := cmplx.Abs(h), cmplx.Phase(h)
	dcIn := b.config.DCOffset
	dcOut := real(b.config.Response(0)) * dcIn

	if b.coupling[0] == bench.CouplingAC {
		dcOut = 0
	}
	if b.coupling[1] == bench.CouplingAC {
		dcIn = 0
	}

	ch1 := make([]float64, n)
	ch2 := make([]float64, n)
	for i := 0; i < n; i++ {
		arg := 2*math.Pi*b.frequency*float64(i)/b.rate + b.config.Phase

		in := dcIn + amplitude*math.Sin(arg)
		out := dcOut + gain*amplitude*math.Sin(arg+shift)

		if b.config.Noise > 0 {
			in += b.config.Noise * b.rng.NormFloat64()
			out += b.config.Noise * b.rng.NormFloat64()
		}

		ch1[i] = math.Round(out / microvolt)
		ch2[i] = math.Round(in / microvolt)
	}

	return ch1, ch2, nil
}

// Scale converts microvolt codes to volts
func (b *Bench) Scale(raw []float64, _ int, _ bench.Channel) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = v * microvolt
	}
	return out
}

func (b *Bench) TimeAxis(n int) ([]float64, string) {
	b.mu.Lock()
	rate := b.rate
	b.mu.Unlock()

	return bench.TimeAxis(n, rate)
}

func (b *Bench) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.playing = false
	return nil
}
