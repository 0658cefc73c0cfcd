package hantek

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/roman-kulish/bodeplot/internal/bench"
	"github.com/roman-kulish/bodeplot/internal/bench/driver"
	"github.com/roman-kulish/bodeplot/internal/sweep"
)

const (
	// DefaultOffset is the raw code of 0 V for an uncalibrated channel
	DefaultOffset = 128.0

	// DefaultTimeout bounds a single capture, USB transfer included
	DefaultTimeout = 5 * time.Second
)

var (
	// SampleRates are the rates the scope supports, kS/s
	SampleRates = []float64{20, 32, 50, 64, 100, 128, 200, 500, 1000, 2000, 4000, 8000, 10000}

	// voltageRanges maps a gain setting to the volts per raw code
	voltageRanges = map[int]float64{
		1:  10.0 / 256, // +/- 5 V
		2:  5.0 / 256,  // +/- 2.5 V
		5:  2.0 / 256,  // +/- 1 V
		10: 1.0 / 256,  // +/- 500 mV
	}
)

// Calibration is a linear per-channel correction: volts = (raw - Offset) * lsb * Correction
type Calibration struct {
	Offset     *float64 `yaml:"offset"`     // Raw code of 0 V (default: 128)
	Correction float64  `yaml:"correction"` // Gain correction factor (default: 1)
}

func (c Calibration) offset() float64 {
	if c.Offset == nil {
		return DefaultOffset
	}
	return *c.Offset
}

func (c Calibration) correction() float64 {
	if c.Correction == 0 {
		return 1
	}
	return c.Correction
}

// Config is the capture runtime configuration
type Config struct {
	Runtime     string         `yaml:"runtime"`     // Capture runtime binary name or path (default: capture_6022)
	DeviceIndex int            `yaml:"deviceIndex"` // -d device index (default: 0)
	Timeout     sweep.Duration `yaml:"timeout"`     // Capture timeout (default: 5s)

	CH1 Calibration `yaml:"ch1"`
	CH2 Calibration `yaml:"ch2"`
}

func (c *Config) Validate() error {
	if c.DeviceIndex < 0 {
		return driver.NewConfigError(Device, "device index must not be negative: %d", c.DeviceIndex)
	}
	if c.Timeout < 0 {
		return driver.NewConfigError(Device, "timeout must not be negative: %s", c.Timeout)
	}
	for _, cal := range []Calibration{c.CH1, c.CH2} {
		if math.IsNaN(cal.Correction) || math.IsInf(cal.Correction, 0) || cal.Correction < 0 {
			return driver.NewConfigError(Device, "invalid calibration correction: %v", cal.Correction)
		}
		if off := cal.offset(); off < 0 || off > 255 {
			return driver.NewConfigError(Device, "calibration offset must be within 0..255: %v", off)
		}
	}

	return nil
}

func (c *Config) runtime() string {
	if c.Runtime == "" {
		return Runtime
	}
	return c.Runtime
}

func (c *Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout.Duration()
}

func (c *Config) calibration(ch bench.Channel) Calibration {
	if ch == bench.ChannelInput {
		return c.CH2
	}
	return c.CH1
}

// Args returns the command line arguments for the capture runtime. The runtime
// writes samples interleaved CH1/CH2 pairs to stdout, one unsigned byte each.
func (c *Config) Args(samples, rateID int, gains [2]int, coupling [2]bench.Coupling) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if samples <= 0 {
		return nil, driver.NewConfigError(Device, "sample count must be positive: %d", samples)
	}
	for _, g := range gains {
		if err := ValidateGain(g); err != nil {
			return nil, err
		}
	}

	args := []string{
		"-d", strconv.Itoa(c.DeviceIndex),
		"-n", strconv.Itoa(samples),
		"-r", strconv.Itoa(rateID),
		"-1", strconv.Itoa(gains[0]),
		"-2", strconv.Itoa(gains[1]),
	}

	for i, cp := range coupling {
		if cp == bench.CouplingAC {
			args = append(args, fmt.Sprintf("--ac%d", i+1))
		}
	}

	args = append(args, "-") // Always dump to stdout

	return args, nil
}

func (c *Config) String() string {
	if err := c.Validate(); err != nil {
		return fmt.Sprintf("hantek.Config: %s", err)
	}
	return fmt.Sprintf("%s -d %d (timeout %s)", c.runtime(), c.DeviceIndex, c.timeout())
}

// ValidateGain checks a gain setting against the supported voltage ranges
func ValidateGain(gain int) error {
	if _, ok := voltageRanges[gain]; !ok {
		return driver.NewConfigError(Device, "invalid gain: %d", gain)
	}
	return nil
}

// RateID maps a sample rate in S/s to the scope's rate identifier: rates below
// 1 MS/s map to 100 + kS/10 (20 kS/s -> 102), higher rates to MS (1 MS/s -> 1).
func RateID(rate float64) (int, error) {
	kS := rate / 1000

	supported := false
	for _, r := range SampleRates {
		if math.Abs(r-kS) < 1e-9 {
			supported = true
			break
		}
	}
	if !supported {
		return 0, fmt.Errorf("unsupported sample rate: %v S/s", rate)
	}

	if kS < 1000 {
		return int(math.Round(100 + kS/10)), nil
	}
	return int(math.Round(kS / 1000)), nil
}
