package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roman-kulish/bodeplot/internal/sweep"
)

// WithLogger sets the logger for the dumper
func WithLogger(logger *slog.Logger) func(d *CaptureDumper) {
	return func(d *CaptureDumper) {
		d.logger = logger.With(slog.String("component", "dump"))
	}
}

// CaptureDumper is a sweep observer writing every step's calibrated waveforms
// to <dir>/capture_<step>.csv. Write failures do not stop the sweep; the
// first one is kept and reported by Err.
type CaptureDumper struct {
	dir    string
	err    error
	logger *slog.Logger
}

// NewCaptureDumper creates dir if needed
func NewCaptureDumper(dir string, options ...func(d *CaptureDumper)) (*CaptureDumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating capture directory: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	d := CaptureDumper{dir: dir, logger: logger}

	for _, option := range options {
		option(&d)
	}

	return &d, nil
}

// Path returns the file a step is dumped to
func (d *CaptureDumper) Path(step int) string {
	return filepath.Join(d.dir, fmt.Sprintf("capture_%03d.csv", step))
}

// Observe implements sweep.Observer
func (d *CaptureDumper) Observe(_ sweep.Record, capture *sweep.Capture) {
	if err := d.write(capture); err != nil {
		d.logger.Warn("capture dump failed", slog.Int("step", capture.Step), slog.String("error", err.Error()))
		if d.err == nil {
			d.err = err
		}
	}
}

// Err returns the first write failure
func (d *CaptureDumper) Err() error {
	return d.err
}

func (d *CaptureDumper) write(capture *sweep.Capture) (err error) {
	f, err := os.Create(d.Path(capture.Step))
	if err != nil {
		return fmt.Errorf("error creating capture file: %w", err)
	}
	defer closeWithError(f, &err)

	cw := csv.NewWriter(f)

	header := []string{fmt.Sprintf("Time (%s)", capture.TimeUnit), "Channel 1 (V)", "Channel 2 (V)"}
	if err = cw.Write(header); err != nil {
		return fmt.Errorf("error writing capture header: %w", err)
	}

	n := min(len(capture.Times), len(capture.Output), len(capture.Input))
	for i := 0; i < n; i++ {
		row := []string{
			formatFloat(capture.Times[i]),
			formatFloat(capture.Output[i]),
			formatFloat(capture.Input[i]),
		}
		if err = cw.Write(row); err != nil {
			return fmt.Errorf("error writing capture row: %w", err)
		}
	}

	cw.Flush()
	if err = cw.Error(); err != nil {
		return fmt.Errorf("error flushing capture: %w", err)
	}

	return nil
}
