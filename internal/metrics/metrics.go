// Package metrics exposes sweep progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/bodeplot/internal/analysis"
	"github.com/roman-kulish/bodeplot/internal/bench"
	"github.com/roman-kulish/bodeplot/internal/sweep"
)

const namespace = "bodeplot"

// Failure reasons used as the "reason" label of the failures counter
const (
	ReasonAcquisition = "acquisition"
	ReasonAnalysis    = "analysis"
	ReasonCancelled   = "cancelled"
	ReasonOther       = "other"
)

// Collector records sweep metrics in its own registry
type Collector struct {
	registry *prometheus.Registry

	steps           prometheus.Counter
	failures        *prometheus.CounterVec
	captureDuration prometheus.Histogram
	frequency       prometheus.Gauge
	sampleRate      prometheus.Gauge
	gain            prometheus.Gauge
	phase           prometheus.Gauge
	records         prometheus.Gauge
	success         prometheus.Gauge
	completion      prometheus.Gauge
}

// NewCollector creates the sweep metrics, labelled with the bench name
func NewCollector(benchName string) *Collector {
	labels := prometheus.Labels{"bench": benchName}

	c := Collector{
		registry: prometheus.NewRegistry(),

		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "steps_total",
			Help:        "Total number of completed sweep steps",
			ConstLabels: labels,
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sweep_failures_total",
			Help:        "Total number of aborted sweeps by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		captureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "capture_duration_seconds",
			Help:        "Duration of digitizer captures in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 10),
			ConstLabels: labels,
		}),
		frequency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_frequency_hertz",
			Help:        "Excitation frequency of the last completed step",
			ConstLabels: labels,
		}),
		sampleRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_sample_rate",
			Help:        "Digitizer sample rate of the last completed step, samples per second",
			ConstLabels: labels,
		}),
		gain: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_gain_ratio",
			Help:        "Gain of the last completed step",
			ConstLabels: labels,
		}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_phase_radians",
			Help:        "Phase difference of the last completed step",
			ConstLabels: labels,
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "sweep_records",
			Help:        "Number of records produced by the last sweep",
			ConstLabels: labels,
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "sweep_success",
			Help:        "Whether the last sweep completed (1) or aborted (0)",
			ConstLabels: labels,
		}),
		completion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "sweep_last_completion_timestamp_seconds",
			Help:        "Unix time the last sweep finished",
			ConstLabels: labels,
		}),
	}

	c.registry.MustRegister(
		c.steps,
		c.failures,
		c.captureDuration,
		c.frequency,
		c.sampleRate,
		c.gain,
		c.phase,
		c.records,
		c.success,
		c.completion,
	)

	return &c
}

// Registry returns the registry holding the sweep metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe implements sweep.Observer
func (c *Collector) Observe(rec sweep.Record, capture *sweep.Capture) {
	c.steps.Inc()
	c.frequency.Set(rec.Frequency)
	c.sampleRate.Set(rec.SampleRate)
	c.gain.Set(rec.Gain)
	c.phase.Set(rec.PhaseDiff)

	if capture != nil {
		c.captureDuration.Observe(capture.Elapsed.Seconds())
	}
}

// SweepFinished records the outcome of a sweep
func (c *Collector) SweepFinished(records []sweep.Record, err error) {
	c.records.Set(float64(len(records)))
	c.completion.Set(float64(time.Now().Unix()))

	if err == nil {
		c.success.Set(1)
		return
	}

	c.success.Set(0)
	c.failures.WithLabelValues(Reason(err)).Inc()
}

// Reason classifies a sweep error into a failure reason label
func Reason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, bench.ErrAcquisition):
		return ReasonAcquisition
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case errors.Is(err, analysis.ErrUndefinedGain), errors.Is(err, analysis.ErrDegenerateInput):
		return ReasonAnalysis
	default:
		return ReasonOther
	}
}

// WriteToTextfile writes the metrics in the text exposition format for the
// node exporter textfile collector
func (c *Collector) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("error writing metrics: %w", err)
	}
	return nil
}
