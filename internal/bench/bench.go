package bench

import (
	"context"
	"errors"
	"fmt"
)

// ErrAcquisition is returned when a device I/O operation fails or times out
// while configuring the bench or capturing samples.
var ErrAcquisition = errors.New("acquisition error")

const (
	// ChannelOutput is the digitizer channel wired to the filter output
	ChannelOutput Channel = 1
	// ChannelInput is the digitizer channel wired to the filter input (reference)
	ChannelInput Channel = 2
)

const (
	CouplingDC Coupling = "dc"
	CouplingAC Coupling = "ac"
)

// Channel identifies a digitizer input channel
type Channel int

func (c Channel) String() string {
	return fmt.Sprintf("CH%d", int(c))
}

// Coupling is the digitizer input coupling mode
type Coupling string

func (c Coupling) String() string {
	return string(c)
}

// Generator is the excitation source driving the filter input with a sine.
// The frequency set by SetFrequency must be stable before the caller captures.
type Generator interface {
	SetFrequency(ctx context.Context, hz float64) error
	Start(ctx context.Context) error
	Stop() error
}

// Digitizer is the two-channel waveform capture device.
type Digitizer interface {
	// ConfigureChannel sets input range (gain) and coupling for a channel.
	// It is idempotent and called once before a sweep.
	ConfigureChannel(ch Channel, gain int, coupling Coupling) error

	// SetSampleRate sets the acquisition rate in samples per second. It takes
	// effect before the next Capture.
	SetSampleRate(rate float64) error

	// Capture blocks until n raw samples per channel are available and
	// returns them for the output and input channels respectively.
	Capture(ctx context.Context, n int) (ch1, ch2 []float64, err error)

	// Scale converts raw samples to calibrated voltages. It has no side effects.
	Scale(raw []float64, gain int, ch Channel) []float64

	// TimeAxis returns the sample times of an n-sample capture at the current
	// sample rate, expressed in the returned unit.
	TimeAxis(n int) (times []float64, unit string)

	// Close releases the device handle.
	Close() error
}

// AcquisitionError wraps err as an ErrAcquisition raised by device during op.
func AcquisitionError(device, op string, err error) error {
	return fmt.Errorf("%w: %s: %s: %w", ErrAcquisition, device, op, err)
}
