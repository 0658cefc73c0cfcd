package sweep

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/bodeplot/internal/analysis"
	"github.com/roman-kulish/bodeplot/internal/bench"
)

const (
	DefaultStartFrequency    = 30.0
	DefaultStopFrequency     = 15_000.0
	DefaultStepRatio         = 1.05
	DefaultSamplesPerCapture = 20 * 1024
	DefaultSkipSamples       = 2 * 1024
	DefaultChannelGain       = 10
	DefaultSettleDelay       = 80 * time.Millisecond

	// MaxSteps bounds the number of frequencies of a single sweep
	MaxSteps = 10_000
)

// ErrInvalidConfig is returned when a sweep configuration fails validation
var ErrInvalidConfig = errors.New("invalid sweep configuration")

// Duration is a time.Duration that reads and writes as a Go duration string
// ("80ms", "1.5s") in YAML and JSON.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("sweep.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("sweep.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config describes one sweep. It is immutable once validated.
type Config struct {
	// StartFrequency is the first excitation frequency, Hz
	StartFrequency float64 `yaml:"startFrequency"`
	// StopFrequency is the exclusive upper bound of the sweep, Hz
	StopFrequency float64 `yaml:"stopFrequency"`
	// StepRatio is the multiplicative step between consecutive frequencies
	StepRatio float64 `yaml:"stepRatio"`
	// SamplesPerCapture is the number of samples per channel handed to the analyzer
	SamplesPerCapture int `yaml:"samplesPerCapture"`
	// SkipSamples leading samples are discarded from every capture
	SkipSamples int `yaml:"skipSamples"`
	// ChannelGain is the digitizer gain setting applied to both channels
	ChannelGain     int              `yaml:"channelGain"`
	Coupling        bench.Coupling   `yaml:"coupling"`
	SettleDelay     Duration         `yaml:"settleDelay"`
	RateTable       []float64        `yaml:"rateTable"` // Sample rates in S/s, ascending
	MinOversampling float64          `yaml:"minOversampling"`
	RMSMode         analysis.RMSMode `yaml:"rmsMode"`
}

// DefaultConfig returns the configuration of the reference bench setup
func DefaultConfig() Config {
	return Config{
		StartFrequency:    DefaultStartFrequency,
		StopFrequency:     DefaultStopFrequency,
		StepRatio:         DefaultStepRatio,
		SamplesPerCapture: DefaultSamplesPerCapture,
		SkipSamples:       DefaultSkipSamples,
		ChannelGain:       DefaultChannelGain,
		Coupling:          bench.CouplingDC,
		SettleDelay:       Duration(DefaultSettleDelay),
		RateTable:         slices.Clone(DefaultRateTable),
		MinOversampling:   DefaultMinOversampling,
		RMSMode:           analysis.RMSModeCompat,
	}
}

func (c *Config) Validate() error {
	if !isFinite(c.StartFrequency) || c.StartFrequency <= 0 {
		return fmt.Errorf("%w: start frequency must be positive: %v", ErrInvalidConfig, c.StartFrequency)
	}
	if !isFinite(c.StopFrequency) || c.StopFrequency <= c.StartFrequency {
		return fmt.Errorf("%w: stop frequency must be greater than start frequency: %v <= %v", ErrInvalidConfig, c.StopFrequency, c.StartFrequency)
	}
	if !isFinite(c.StepRatio) || c.StepRatio <= 1 {
		return fmt.Errorf("%w: step ratio must be greater than 1: %v", ErrInvalidConfig, c.StepRatio)
	}
	if n := stepCount(*c); n > MaxSteps {
		return fmt.Errorf("%w: sweep would take %.0f steps, at most %d allowed", ErrInvalidConfig, n, MaxSteps)
	}
	if c.SamplesPerCapture < analysis.MinSamples {
		return fmt.Errorf("%w: samples per capture must be at least %d: %d", ErrInvalidConfig, analysis.MinSamples, c.SamplesPerCapture)
	}
	if c.SkipSamples < 0 {
		return fmt.Errorf("%w: skip samples must not be negative: %d", ErrInvalidConfig, c.SkipSamples)
	}
	if c.ChannelGain <= 0 {
		return fmt.Errorf("%w: channel gain must be positive: %d", ErrInvalidConfig, c.ChannelGain)
	}
	switch c.Coupling {
	case bench.CouplingDC, bench.CouplingAC:
	default:
		return fmt.Errorf("%w: unknown coupling: %q", ErrInvalidConfig, c.Coupling)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("%w: settle delay must not be negative: %s", ErrInvalidConfig, c.SettleDelay)
	}
	if len(c.RateTable) == 0 {
		return fmt.Errorf("%w: rate table is empty", ErrInvalidConfig)
	}
	for i, r := range c.RateTable {
		if !isFinite(r) || r <= 0 {
			return fmt.Errorf("%w: rate table entry %d must be positive: %v", ErrInvalidConfig, i, r)
		}
		if i > 0 && r <= c.RateTable[i-1] {
			return fmt.Errorf("%w: rate table must be strictly ascending at entry %d", ErrInvalidConfig, i)
		}
	}
	if !isFinite(c.MinOversampling) || c.MinOversampling <= 0 {
		return fmt.Errorf("%w: minimum oversampling must be positive: %v", ErrInvalidConfig, c.MinOversampling)
	}
	if err := c.RMSMode.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// stepCount estimates the number of frequencies in [start, stop)
func stepCount(c Config) float64 {
	return math.Ceil(math.Log(c.StopFrequency/c.StartFrequency) / math.Log(c.StepRatio))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
