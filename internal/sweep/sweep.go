// Package sweep runs a stepped-sine frequency response measurement.
//
// The Controller drives a bench.Generator through a geometric sequence of
// frequencies, captures both filter terminals with a bench.Digitizer at each
// point and hands the calibrated waveforms to the analyzer. The sweep is
// strictly sequential: one step completes before the next frequency is set.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/bodeplot/internal/analysis"
	"github.com/roman-kulish/bodeplot/internal/bench"
)

const (
	StateIdle State = iota
	StateRunning
	StateDone
)

// ErrAlreadyRun is returned by Run on a controller that has already swept
var ErrAlreadyRun = errors.New("sweep: controller has already run")

// State of a Controller
type State int32

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// StepError reports the step and frequency at which a sweep was aborted
type StepError struct {
	Step      int
	Frequency float64
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("sweep step %d at %s: %s", e.Step, FormatFrequency(e.Frequency), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// WithLogger sets the logger for the controller
func WithLogger(logger *slog.Logger) func(c *Controller) {
	return func(c *Controller) {
		c.logger = logger.With(slog.String("component", "sweep"))
	}
}

// WithObserver registers an observer notified after each successful step.
// Observers are called in registration order.
func WithObserver(observer Observer) func(c *Controller) {
	return func(c *Controller) {
		if observer != nil {
			c.observers = append(c.observers, observer)
		}
	}
}

// WithAnalyzerOptions passes extra options to the analyzer. They are applied
// after the RMS mode from Config.
func WithAnalyzerOptions(options ...analysis.Option) func(c *Controller) {
	return func(c *Controller) {
		c.analyzerOptions = append(c.analyzerOptions, options...)
	}
}

// withSleep replaces the settle delay implementation
func withSleep(sleep func(ctx context.Context, d time.Duration) error) func(c *Controller) {
	return func(c *Controller) {
		c.sleep = sleep
	}
}

// Controller owns a generator and digitizer pair for the duration of one sweep
type Controller struct {
	gen    bench.Generator
	dig    bench.Digitizer
	config Config

	analyzerOptions []analysis.Option
	observers       []Observer
	sleep           func(ctx context.Context, d time.Duration) error

	state       atomic.Int32
	releaseOnce sync.Once
	releaseErr  error

	logger *slog.Logger
}

// NewController validates config and creates a Controller that takes ownership
// of gen and dig. Both are released when Run returns.
func NewController(gen bench.Generator, dig bench.Digitizer, config Config, options ...func(c *Controller)) (*Controller, error) {
	if gen == nil || dig == nil {
		return nil, fmt.Errorf("%w: generator and digitizer are required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	c := Controller{
		gen:    gen,
		dig:    dig,
		config: config,
		sleep:  sleepContext,
		logger: logger,
	}

	for _, option := range options {
		option(&c)
	}

	return &c, nil
}

// Config returns the validated sweep configuration
func (c *Controller) Config() Config {
	return c.config
}

// State returns the current controller state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Run performs the sweep and returns the records in frequency order. On a step
// failure or context cancellation the records measured so far are returned
// together with a *StepError. The generator and digitizer are released exactly
// once before Run returns, whatever the outcome.
func (c *Controller) Run(ctx context.Context) (records []Record, err error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyRun
	}

	defer func() {
		if releaseErr := c.release(); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
		c.state.Store(int32(StateDone))
	}()

	if err = c.setup(ctx); err != nil {
		return nil, err
	}

	analyzerOptions := append([]analysis.Option{analysis.WithRMSMode(c.config.RMSMode)}, c.analyzerOptions...)
	analyzer := analysis.NewAnalyzer(analyzerOptions...)

	frequencies := Frequencies(c.config)
	records = make([]Record, 0, len(frequencies))

	c.logger.Info("sweep started",
		slog.String("start", FormatFrequency(c.config.StartFrequency)),
		slog.String("stop", FormatFrequency(c.config.StopFrequency)),
		slog.Float64("ratio", c.config.StepRatio),
		slog.Int("steps", len(frequencies)),
	)

	for step, frequency := range frequencies {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return records, &StepError{Step: step, Frequency: frequency, Err: ctxErr}
		}

		rec, stepErr := c.step(ctx, analyzer, step, frequency)
		if stepErr != nil {
			c.logger.Error("sweep aborted",
				slog.Int("step", step),
				slog.String("frequency", FormatFrequency(frequency)),
				slog.String("error", stepErr.Error()),
			)
			return records, &StepError{Step: step, Frequency: frequency, Err: stepErr}
		}

		records = append(records, rec)
	}

	c.logger.Info("sweep completed", slog.Int("records", len(records)))

	return records, nil
}

func (c *Controller) setup(ctx context.Context) error {
	for _, ch := range []bench.Channel{bench.ChannelOutput, bench.ChannelInput} {
		if err := c.dig.ConfigureChannel(ch, c.config.ChannelGain, c.config.Coupling); err != nil {
			return acquisitionError(fmt.Sprintf("configure %s", ch), err)
		}
	}

	if err := c.gen.Start(ctx); err != nil {
		return acquisitionError("start generator", err)
	}

	return nil
}

func (c *Controller) step(ctx context.Context, analyzer *analysis.Analyzer, step int, frequency float64) (Record, error) {
	c.logger.Info("measuring", slog.Int("step", step), slog.String("frequency", FormatFrequency(frequency)))

	if err := c.gen.SetFrequency(ctx, frequency); err != nil {
		return Record{}, acquisitionError("set frequency", err)
	}

	rate := SelectRateWith(frequency, c.config.MinOversampling, c.config.RateTable)
	if err := c.dig.SetSampleRate(rate); err != nil {
		return Record{}, acquisitionError("set sample rate", err)
	}

	if err := c.sleep(ctx, c.config.SettleDelay.Duration()); err != nil {
		return Record{}, err
	}

	total := c.config.SamplesPerCapture + c.config.SkipSamples

	started := time.Now()
	raw1, raw2, err := c.dig.Capture(ctx, total)
	elapsed := time.Since(started)
	if err != nil {
		return Record{}, acquisitionError("capture", err)
	}
	if len(raw1) < total || len(raw2) < total {
		return Record{}, bench.AcquisitionError("digitizer", "capture",
			fmt.Errorf("short read: got %d/%d samples, want %d", len(raw1), len(raw2), total))
	}

	skip := c.config.SkipSamples
	output := c.dig.Scale(raw1[skip:total], c.config.ChannelGain, bench.ChannelOutput)
	input := c.dig.Scale(raw2[skip:total], c.config.ChannelGain, bench.ChannelInput)

	res, err := analyzer.Analyze(output, input, rate)
	if err != nil {
		return Record{}, err
	}

	rec := newRecord(step, frequency, rate, res)

	c.logger.Debug("measured",
		slog.Int("step", step),
		slog.String("sampleRate", humanize.SIWithDigits(rate, 0, "S/s")),
		slog.Float64("gain", rec.Gain),
		slog.Float64("phase", rec.PhaseDiff),
		slog.Duration("capture", elapsed),
	)

	if len(c.observers) > 0 {
		times, unit := c.dig.TimeAxis(c.config.SamplesPerCapture)
		capture := Capture{
			Step:       step,
			Frequency:  frequency,
			SampleRate: rate,
			Times:      times,
			TimeUnit:   unit,
			Output:     output,
			Input:      input,
			Elapsed:    elapsed,
		}
		for _, observer := range c.observers {
			observer(rec, &capture)
		}
	}

	return rec, nil
}

// release stops the generator and closes the digitizer, once
func (c *Controller) release() error {
	c.releaseOnce.Do(func() {
		var errs []error
		if err := c.gen.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping generator: %w", err))
		}
		if err := c.dig.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing digitizer: %w", err))
		}
		c.releaseErr = errors.Join(errs...)

		if c.releaseErr != nil {
			c.logger.Warn("bench release failed", slog.String("error", c.releaseErr.Error()))
		}
	})

	return c.releaseErr
}

// Frequencies returns the planned excitation frequencies of a sweep:
// start * ratio^k for k = 0, 1, ... while the value stays below stop.
// It returns nil for a configuration that would not terminate or would take
// more than MaxSteps steps.
func Frequencies(config Config) []float64 {
	if config.StartFrequency <= 0 || config.StepRatio <= 1 || !isFinite(config.StepRatio) || !isFinite(config.StopFrequency) {
		return nil
	}
	if stepCount(config) > MaxSteps {
		return nil
	}

	var out []float64
	for k := 0; ; k++ {
		f := config.StartFrequency * math.Pow(config.StepRatio, float64(k))
		if f >= config.StopFrequency {
			break
		}
		out = append(out, f)
	}

	return out
}

// FormatFrequency renders a frequency with an SI prefix, e.g. "1.5 kHz"
func FormatFrequency(hz float64) string {
	return humanize.SIWithDigits(hz, 2, "Hz")
}

// acquisitionError wraps a device failure as bench.ErrAcquisition unless it
// already is one or the context ended.
func acquisitionError(op string, err error) error {
	if errors.Is(err, bench.ErrAcquisition) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return bench.AcquisitionError("bench", op, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
