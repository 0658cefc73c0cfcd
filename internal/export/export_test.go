package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/bodeplot/internal/sweep"
)

var testRecords = []sweep.Record{
	{Step: 0, Frequency: 100, RMSOutput: 1.4142, RMSInput: 0.7071, Gain: 2, PhaseDiff: 0.7853981633974483},
	{Step: 1, Frequency: 200, RMSOutput: 0.5, RMSInput: 0.7071, Gain: 0.7071135624381276, PhaseDiff: -3.1},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testRecords))

	want := "Frequency,Channel 1 RMS Magnitude,Channel 2 RMS Magnitude,Gain (Ch1/Ch2),Phase Difference\n" +
		"100,1.4142,0.7071,2,0.7853981633974483\n" +
		"200,0.5,0.7071,0.7071135624381276,-3.1\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, strings.Join(Header, ",")+"\n", buf.String())
}

func TestCSVFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bodeplot.csv")

	require.NoError(t, WriteCSVFile(path, testRecords))

	got, err := ReadCSVFile(path)
	require.NoError(t, err)
	assert.Equal(t, testRecords, got)
}

func TestReadCSV_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong header", "f,a,b,c,d\n"},
		{"missing column", strings.Join(Header, ",") + "\n1,2,3,4\n"},
		{"not a number", strings.Join(Header, ",") + "\n1,2,x,4,5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestReadCSVFile_Missing(t *testing.T) {
	_, err := ReadCSVFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCaptureDumper(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures")

	d, err := NewCaptureDumper(dir)
	require.NoError(t, err)

	d.Observe(testRecords[0], &sweep.Capture{
		Step:     3,
		Times:    []float64{0, 0.05},
		TimeUnit: "ms",
		Output:   []float64{0.1, -0.1},
		Input:    []float64{0.2, -0.25},
	})
	require.NoError(t, d.Err())

	b, err := os.ReadFile(filepath.Join(dir, "capture_003.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Time (ms),Channel 1 (V),Channel 2 (V)\n0,0.1,0.2\n0.05,-0.1,-0.25\n", string(b))
}

func TestCaptureDumper_WriteFailure(t *testing.T) {
	dir := t.TempDir()

	d, err := NewCaptureDumper(dir)
	require.NoError(t, err)

	// a directory in place of the capture file makes the write fail
	require.NoError(t, os.Mkdir(d.Path(0), 0o755))

	d.Observe(sweep.Record{}, &sweep.Capture{Step: 0})
	d.Observe(sweep.Record{}, &sweep.Capture{Step: 1})

	assert.Error(t, d.Err())
	assert.FileExists(t, d.Path(1))
}
