package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/bodeplot/internal/analysis"
	"github.com/roman-kulish/bodeplot/internal/bench"
	"github.com/roman-kulish/bodeplot/internal/sweep"
)

func TestCollector_Observe(t *testing.T) {
	c := NewCollector("sim")

	c.Observe(sweep.Record{Frequency: 100, SampleRate: 20_000, Gain: 0.5, PhaseDiff: -0.3}, &sweep.Capture{Elapsed: 20 * time.Millisecond})
	c.Observe(sweep.Record{Frequency: 200, SampleRate: 20_000, Gain: 0.25, PhaseDiff: -0.6}, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.steps))
	assert.Equal(t, 200.0, testutil.ToFloat64(c.frequency))
	assert.Equal(t, 20_000.0, testutil.ToFloat64(c.sampleRate))
	assert.Equal(t, 0.25, testutil.ToFloat64(c.gain))
	assert.Equal(t, -0.6, testutil.ToFloat64(c.phase))
	assert.Equal(t, 1, testutil.CollectAndCount(c.captureDuration))

	expected := `
# HELP bodeplot_capture_duration_seconds Duration of digitizer captures in seconds
# TYPE bodeplot_capture_duration_seconds histogram
bodeplot_capture_duration_seconds_bucket{bench="sim",le="0.01"} 0
bodeplot_capture_duration_seconds_bucket{bench="sim",le="0.02"} 1
bodeplot_capture_duration_seconds_bucket{bench="sim",le="0.04"} 1
bodeplot_capture_duration_seconds_bucket{bench="sim",le="0.08"} 1
bodeplot_capture_duration_seconds_bucket{bench="sim",le="0.16"} 1
bodeplot_capture_duration_seconds_bucket{bench="sim",le="0.32"} 1
bodeplot_capture_duration_seconds_bucket{bench="sim",le="0.64"} 1
bodeplot_capture_duration_seconds_bucket{bench="sim",le="1.28"} 1
bodeplot_capture_duration_seconds_bucket{bench="sim",le="2.56"} 1
bodeplot_capture_duration_seconds_bucket{bench="sim",le="5.12"} 1
bodeplot_capture_duration_seconds_bucket{bench="sim",le="+Inf"} 1
bodeplot_capture_duration_seconds_sum{bench="sim"} 0.02
bodeplot_capture_duration_seconds_count{bench="sim"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(c.captureDuration, strings.NewReader(expected)))
}

func TestCollector_SweepFinished(t *testing.T) {
	c := NewCollector("hantek")

	c.SweepFinished(make([]sweep.Record, 5), nil)
	assert.Equal(t, 5.0, testutil.ToFloat64(c.records))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.success))
	assert.Positive(t, testutil.ToFloat64(c.completion))

	err := &sweep.StepError{Step: 2, Frequency: 400, Err: bench.AcquisitionError("hantek", "capture", errors.New("usb"))}
	c.SweepFinished(make([]sweep.Record, 2), err)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.records))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.success))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues(ReasonAcquisition)))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.failures.WithLabelValues(ReasonAnalysis)))
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&sweep.StepError{Err: context.Canceled}, ReasonCancelled},
		{bench.AcquisitionError("hantek", "capture", context.DeadlineExceeded), ReasonAcquisition},
		{context.DeadlineExceeded, ReasonCancelled},
		{&sweep.StepError{Err: analysis.ErrUndefinedGain}, ReasonAnalysis},
		{analysis.ErrDegenerateInput, ReasonAnalysis},
		{errors.New("boom"), ReasonOther},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}

func TestCollector_WriteToTextfile(t *testing.T) {
	c := NewCollector("sim")
	c.Observe(sweep.Record{Frequency: 1000, Gain: 1}, nil)
	c.SweepFinished(make([]sweep.Record, 1), nil)

	path := filepath.Join(t.TempDir(), "bodeplot.prom")
	require.NoError(t, c.WriteToTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `bodeplot_steps_total{bench="sim"} 1`)
	assert.Contains(t, string(b), `bodeplot_sweep_success{bench="sim"} 1`)

	assert.Error(t, c.WriteToTextfile(filepath.Join(t.TempDir(), "missing", "bodeplot.prom")))
}
