package tone

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roman-kulish/bodeplot/internal/bench/driver"
)

const (
	DefaultAmplitude = 0.5
	DefaultLength    = 3600 // seconds of tone per play process
	DefaultRate      = 48_000
)

// Config is the SoX `play` configuration
type Config struct {
	Runtime   string  `yaml:"runtime"`   // Player binary name or path (default: play)
	Device    string  `yaml:"device"`    // Output sound device, exported as AUDIODEV (default: system default)
	Amplitude float64 `yaml:"amplitude"` // vol, 0 < amplitude <= 1 (default: 0.5)
	Length    int     `yaml:"length"`    // synth length in seconds (default: 3600)
	Rate      int     `yaml:"rate"`      // -r synth sample rate in Hz (default: 48000)
}

func (c *Config) amplitude() float64 {
	if c.Amplitude == 0 {
		return DefaultAmplitude
	}
	return c.Amplitude
}

func (c *Config) length() int {
	if c.Length == 0 {
		return DefaultLength
	}
	return c.Length
}

func (c *Config) rate() int {
	if c.Rate == 0 {
		return DefaultRate
	}
	return c.Rate
}

func (c *Config) runtime() string {
	if c.Runtime == "" {
		return Runtime
	}
	return c.Runtime
}

func (c *Config) Validate() error {
	if math.IsNaN(c.Amplitude) || c.Amplitude < 0 || c.Amplitude > 1 {
		return driver.NewConfigError(Device, "amplitude must be within (0, 1]: %v", c.Amplitude)
	}
	if c.Length < 0 {
		return driver.NewConfigError(Device, "length must not be negative: %d", c.Length)
	}
	if c.Rate < 0 {
		return driver.NewConfigError(Device, "rate must not be negative: %d", c.Rate)
	}
	return nil
}

// MaxFrequency is the highest tone the sound device can reproduce
func (c *Config) MaxFrequency() float64 {
	return float64(c.rate()) / 2
}

// Args returns the command line arguments for `play` producing a sine at hz
func (c *Config) Args(hz float64) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !(hz > 0) || hz >= c.MaxFrequency() {
		return nil, driver.NewConfigError(Device, "frequency must be within (0, %v) Hz: %v", c.MaxFrequency(), hz)
	}

	return []string{
		"-q",
		"-r", strconv.Itoa(c.rate()),
		"-n",
		"synth", strconv.Itoa(c.length()),
		"sine", strconv.FormatFloat(hz, 'f', -1, 64),
		"vol", strconv.FormatFloat(c.amplitude(), 'f', -1, 64),
	}, nil
}

// Env returns the environment additions for the player process
func (c *Config) Env() []string {
	if c.Device == "" {
		return nil
	}
	return []string{"AUDIODEV=" + c.Device}
}

func (c *Config) String() string {
	args, err := c.Args(1000)
	if err != nil {
		return fmt.Sprintf("tone.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", c.runtime(), strings.Join(args, " "))
}
