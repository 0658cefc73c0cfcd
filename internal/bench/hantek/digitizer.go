// Package hantek drives a Hantek 6022 USB oscilloscope as a two-channel
// digitizer. Transfers are done by an external capture runtime; firmware
// upload and USB handling are left to that runtime.
//
// The runtime is expected to accept
//
//	capture_6022 -d <index> -n <samples> -r <rate id> -1 <gain> -2 <gain> [--ac1] [--ac2] -
//
// and write <samples> pairs of unsigned bytes, CH1 then CH2, to stdout before
// exiting with status 0. Anything it writes to stderr is logged and attached
// to the capture error.
package hantek

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strings"
	"sync"

	"github.com/roman-kulish/bodeplot/internal/bench"
	"github.com/roman-kulish/bodeplot/internal/bench/driver"
)

const (
	Runtime = "capture_6022"
	Device  = "hantek"
)

// ErrClosed is returned by operations on a closed digitizer
var ErrClosed = errors.New("hantek: digitizer is closed")

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// WithLogger sets the logger for the digitizer
func WithLogger(logger *slog.Logger) func(d *Digitizer) {
	return func(d *Digitizer) {
		d.logger = logger.With(slog.String("device", Device))
	}
}

// Digitizer implements bench.Digitizer. Each Capture runs the capture runtime
// once with the channel settings and sample rate in effect.
type Digitizer struct {
	binPath string
	config  *Config
	command commandFunc

	mu       sync.Mutex
	gains    [2]int
	coupling [2]bench.Coupling
	rate     float64
	rateID   int
	closed   bool

	logger *slog.Logger
}

// New creates a digitizer backed by the capture runtime found in PATH
func New(config *Config, options ...func(d *Digitizer)) (*Digitizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	binPath, err := driver.FindRuntime(config.runtime())
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return newDigitizer(binPath, config, exec.CommandContext, options...), nil
}

func newDigitizer(binPath string, config *Config, command commandFunc, options ...func(d *Digitizer)) *Digitizer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	d := Digitizer{
		binPath:  binPath,
		config:   config,
		command:  command,
		gains:    [2]int{10, 10},
		coupling: [2]bench.Coupling{bench.CouplingDC, bench.CouplingDC},
		logger:   logger,
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

func channelIndex(ch bench.Channel) (int, error) {
	switch ch {
	case bench.ChannelOutput:
		return 0, nil
	case bench.ChannelInput:
		return 1, nil
	default:
		return 0, fmt.Errorf("unknown channel: %s", ch)
	}
}

func (d *Digitizer) ConfigureChannel(ch bench.Channel, gain int, coupling bench.Coupling) error {
	idx, err := channelIndex(ch)
	if err != nil {
		return bench.AcquisitionError(Device, "configure channel", err)
	}
	if err = ValidateGain(gain); err != nil {
		return bench.AcquisitionError(Device, "configure channel", err)
	}
	if coupling != bench.CouplingDC && coupling != bench.CouplingAC {
		return bench.AcquisitionError(Device, "configure channel", fmt.Errorf("unknown coupling: %q", coupling))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return bench.AcquisitionError(Device, "configure channel", ErrClosed)
	}

	d.gains[idx] = gain
	d.coupling[idx] = coupling

	return nil
}

func (d *Digitizer) SetSampleRate(rate float64) error {
	id, err := RateID(rate)
	if err != nil {
		return bench.AcquisitionError(Device, "set sample rate", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return bench.AcquisitionError(Device, "set sample rate", ErrClosed)
	}

	d.rate, d.rateID = rate, id

	return nil
}

// Capture runs the capture runtime and reads n interleaved CH1/CH2 byte pairs
// from its stdout. The run is bounded by the configured timeout.
func (d *Digitizer) Capture(ctx context.Context, n int) ([]float64, []float64, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, nil, bench.AcquisitionError(Device, "capture", ErrClosed)
	}
	if d.rateID == 0 {
		d.mu.Unlock()
		return nil, nil, bench.AcquisitionError(Device, "capture", errors.New("sample rate not set"))
	}
	args, err := d.config.Args(n, d.rateID, d.gains, d.coupling)
	d.mu.Unlock()
	if err != nil {
		return nil, nil, bench.AcquisitionError(Device, "capture", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.timeout())
	defer cancel()

	cmd := d.command(ctx, d.binPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, bench.AcquisitionError(Device, "capture", fmt.Errorf("error creating stdout pipe: %w", err))
	}

	if err = cmd.Start(); err != nil {
		return nil, nil, bench.AcquisitionError(Device, "capture", driver.NewRuntimeError(d.binPath, err))
	}

	buf := make([]byte, 2*n)
	_, readErr := io.ReadFull(bufio.NewReader(stdout), buf)

	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, bench.AcquisitionError(Device, "capture", ctxErr)
	}
	if readErr != nil {
		return nil, nil, bench.AcquisitionError(Device, "capture", d.runtimeFailure(fmt.Errorf("short read: %w", readErr), &stderr))
	}
	if waitErr != nil {
		return nil, nil, bench.AcquisitionError(Device, "capture", d.runtimeFailure(waitErr, &stderr))
	}

	ch1 := make([]float64, n)
	ch2 := make([]float64, n)
	for i := 0; i < n; i++ {
		ch1[i] = float64(buf[2*i])
		ch2[i] = float64(buf[2*i+1])
	}

	return ch1, ch2, nil
}

func (d *Digitizer) runtimeFailure(err error, stderr *bytes.Buffer) error {
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		d.logger.Warn(fmt.Sprintf("%s >> %s", Runtime, msg))
		err = fmt.Errorf("%w: %s", err, msg)
	}
	return err
}

// Scale converts raw codes to volts with the channel's calibration. An
// unsupported gain yields NaN samples, which the analyzer rejects.
func (d *Digitizer) Scale(raw []float64, gain int, ch bench.Channel) []float64 {
	lsb, ok := voltageRanges[gain]
	if !ok {
		lsb = math.NaN()
	}

	cal := d.config.calibration(ch)
	offset, correction := cal.offset(), cal.correction()

	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = (v - offset) * lsb * correction
	}

	return out
}

func (d *Digitizer) TimeAxis(n int) ([]float64, string) {
	d.mu.Lock()
	rate := d.rate
	d.mu.Unlock()

	return bench.TimeAxis(n, rate)
}

func (d *Digitizer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	return nil
}
