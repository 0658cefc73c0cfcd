package sweep

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/bodeplot/internal/analysis"
	"github.com/roman-kulish/bodeplot/internal/bench"
)

var errDevice = errors.New("usb transfer timed out")

// mockBench models a filter with a fixed gain and phase shift
type mockBench struct {
	gain  float64
	phase float64

	frequency float64
	rate      float64

	captures      int
	failOnCapture int // 1-based capture index that fails, 0 never
	zeroInput     bool
	shortRead     bool

	configured []bench.Channel
	started    int
	stopped    int
	closed     int
	rates      []float64
}

func (m *mockBench) SetFrequency(_ context.Context, hz float64) error {
	m.frequency = hz
	return nil
}

func (m *mockBench) Start(context.Context) error {
	m.started++
	return nil
}

func (m *mockBench) Stop() error {
	m.stopped++
	return nil
}

func (m *mockBench) ConfigureChannel(ch bench.Channel, _ int, _ bench.Coupling) error {
	m.configured = append(m.configured, ch)
	return nil
}

func (m *mockBench) SetSampleRate(rate float64) error {
	m.rate = rate
	m.rates = append(m.rates, rate)
	return nil
}

func (m *mockBench) Capture(_ context.Context, n int) ([]float64, []float64, error) {
	m.captures++
	if m.captures == m.failOnCapture {
		return nil, nil, bench.AcquisitionError("mock", "capture", errDevice)
	}
	if m.shortRead {
		n--
	}

	ch1 := make([]float64, n)
	ch2 := make([]float64, n)
	for i := range ch1 {
		arg := 2 * math.Pi * m.frequency * float64(i) / m.rate
		if !m.zeroInput {
			ch2[i] = math.Sin(arg)
		}
		ch1[i] = m.gain * math.Sin(arg+m.phase)
	}
	return ch1, ch2, nil
}

func (m *mockBench) Scale(raw []float64, _ int, _ bench.Channel) []float64 {
	out := make([]float64, len(raw))
	copy(out, raw)
	return out
}

func (m *mockBench) TimeAxis(n int) ([]float64, string) {
	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i) / m.rate
	}
	return times, "s"
}

func (m *mockBench) Close() error {
	m.closed++
	return nil
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// testConfig sweeps at 20 kS/s with one-second captures so every integer
// frequency completes whole cycles
func testConfig(start, stop, ratio float64) Config {
	config := DefaultConfig()
	config.StartFrequency = start
	config.StopFrequency = stop
	config.StepRatio = ratio
	config.SamplesPerCapture = 20_000
	config.SkipSamples = 2048
	return config
}

func TestController_EndToEnd(t *testing.T) {
	m := &mockBench{gain: 2, phase: math.Pi / 4}

	var observed []Record
	var sampleCounts []int
	c, err := NewController(m, m, testConfig(100, 1000, 2),
		withSleep(noSleep),
		WithObserver(func(rec Record, capture *Capture) {
			observed = append(observed, rec)
			sampleCounts = append(sampleCounts, len(capture.Output))
		}),
	)
	require.NoError(t, err)

	records, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)

	for i, want := range []float64{100, 200, 400, 800} {
		rec := records[i]
		assert.Equal(t, i, rec.Step)
		assert.InDelta(t, want, rec.Frequency, 1e-9)
		assert.Equal(t, 20_000.0, rec.SampleRate)
		assert.InDelta(t, 2.0, rec.Gain, 1e-6)
		assert.InDelta(t, math.Pi/4, rec.PhaseDiff, 1e-6)
		assert.InDelta(t, want, rec.Output.FundamentalFrequency, 1e-9)
	}

	assert.Equal(t, records, observed)
	assert.Equal(t, []int{20_000, 20_000, 20_000, 20_000}, sampleCounts)
	assert.Equal(t, []bench.Channel{bench.ChannelOutput, bench.ChannelInput}, m.configured)
	assert.Equal(t, 1, m.started)
	assert.Equal(t, 1, m.stopped)
	assert.Equal(t, 1, m.closed)
	assert.Equal(t, StateDone, c.State())
}

func TestController_AbortOnAcquisitionError(t *testing.T) {
	m := &mockBench{gain: 1, failOnCapture: 3}

	config := testConfig(100, 3000, 2)
	require.Len(t, Frequencies(config), 5)

	c, err := NewController(m, m, config, withSleep(noSleep))
	require.NoError(t, err)

	records, err := c.Run(context.Background())
	require.Error(t, err)
	require.Len(t, records, 2)

	assert.ErrorIs(t, err, bench.ErrAcquisition)
	assert.ErrorIs(t, err, errDevice)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 2, stepErr.Step)
	assert.InDelta(t, 400.0, stepErr.Frequency, 1e-9)

	assert.Equal(t, 3, m.captures)
	assert.Equal(t, 1, m.stopped)
	assert.Equal(t, 1, m.closed)
}

func TestController_UndefinedGain(t *testing.T) {
	m := &mockBench{gain: 1, zeroInput: true}

	c, err := NewController(m, m, testConfig(100, 1000, 2), withSleep(noSleep))
	require.NoError(t, err)

	records, err := c.Run(context.Background())
	assert.Empty(t, records)
	assert.ErrorIs(t, err, analysis.ErrUndefinedGain)
	assert.Equal(t, 1, m.closed)
}

func TestController_ShortRead(t *testing.T) {
	m := &mockBench{gain: 1, shortRead: true}

	c, err := NewController(m, m, testConfig(100, 1000, 2), withSleep(noSleep))
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, bench.ErrAcquisition)
}

func TestController_Cancellation(t *testing.T) {
	m := &mockBench{gain: 1}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps int
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps++
		assert.Equal(t, DefaultSettleDelay, d)
		if sleeps == 2 {
			cancel()
		}
		return ctx.Err()
	}

	c, err := NewController(m, m, testConfig(100, 1000, 2), withSleep(sleep))
	require.NoError(t, err)

	records, err := c.Run(ctx)
	assert.Len(t, records, 1)
	assert.ErrorIs(t, err, context.Canceled)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Step)

	assert.Equal(t, 1, m.captures)
	assert.Equal(t, 1, m.stopped)
	assert.Equal(t, 1, m.closed)
}

func TestController_CancelledBeforeStart(t *testing.T) {
	m := &mockBench{gain: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := NewController(m, m, testConfig(100, 1000, 2), withSleep(noSleep))
	require.NoError(t, err)

	records, err := c.Run(ctx)
	assert.Empty(t, records)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.captures)
	assert.Equal(t, 1, m.closed)
}

func TestController_RunOnce(t *testing.T) {
	m := &mockBench{gain: 1}

	c, err := NewController(m, m, testConfig(100, 300, 2), withSleep(noSleep))
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
	assert.Equal(t, 1, m.closed)
}

type failingRelease struct {
	mockBench
}

func (f *failingRelease) Stop() error {
	f.stopped++
	return errors.New("audio device busy")
}

func (f *failingRelease) Close() error {
	f.closed++
	return errors.New("usb handle lost")
}

func TestController_ReleaseErrors(t *testing.T) {
	m := &failingRelease{mockBench{gain: 1}}

	c, err := NewController(m, m, testConfig(100, 300, 2), withSleep(noSleep))
	require.NoError(t, err)

	records, err := c.Run(context.Background())
	assert.Len(t, records, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio device busy")
	assert.Contains(t, err.Error(), "usb handle lost")
	assert.Equal(t, 1, m.stopped)
	assert.Equal(t, 1, m.closed)
}

func TestController_RateSelection(t *testing.T) {
	m := &mockBench{gain: 1}

	config := testConfig(1000, 20_000, 2)
	config.SamplesPerCapture = 64
	config.SkipSamples = 0

	c, err := NewController(m, m, config, withSleep(noSleep))
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	require.NoError(t, err)

	// 1k to 8k: nothing strictly below 4f except the lowest entry; 16k -> 50k
	assert.Equal(t, []float64{20_000, 20_000, 20_000, 20_000, 50_000}, m.rates)
}

func TestController_Config(t *testing.T) {
	m := &mockBench{}

	config := testConfig(100, 1000, 2)
	c, err := NewController(m, m, config)
	require.NoError(t, err)
	assert.Equal(t, config, c.Config())
}

func TestNewController_InvalidConfig(t *testing.T) {
	m := &mockBench{}

	config := testConfig(1000, 100, 2)
	_, err := NewController(m, m, config)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewController(nil, m, testConfig(100, 1000, 2))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFrequencies(t *testing.T) {
	tests := []struct {
		name              string
		start, stop, step float64
		want              int
	}{
		{"defaults", 30, 15_000, 1.05, 128},
		{"octaves", 100, 1000, 2, 4},
		{"stop on a step", 100, 800, 2, 3},
		{"single", 100, 150, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.StartFrequency = tt.start
			config.StopFrequency = tt.stop
			config.StepRatio = tt.step

			got := Frequencies(config)
			require.Len(t, got, tt.want)

			assert.Equal(t, tt.start, got[0])
			for k := range got {
				assert.Equal(t, tt.start*math.Pow(tt.step, float64(k)), got[k])
				if k > 0 {
					assert.Greater(t, got[k], got[k-1])
				}
			}
			assert.Less(t, got[len(got)-1], tt.stop)
		})
	}

	assert.Nil(t, Frequencies(Config{StartFrequency: 1, StopFrequency: 10, StepRatio: 1}))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleepContext(ctx, 0), context.Canceled)
}
