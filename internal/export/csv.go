// Package export writes sweep results and raw captures as CSV files.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/roman-kulish/bodeplot/internal/sweep"
)

// Header is the first row of a results file
var Header = []string{
	"Frequency",
	"Channel 1 RMS Magnitude",
	"Channel 2 RMS Magnitude",
	"Gain (Ch1/Ch2)",
	"Phase Difference",
}

// ErrMalformed is returned when a results file cannot be parsed
var ErrMalformed = errors.New("malformed results file")

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes the header and one row per record: frequency, channel 1
// RMS, channel 2 RMS, gain and phase difference in radians.
func WriteCSV(w io.Writer, records []sweep.Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	row := make([]string, len(Header))
	for _, rec := range records {
		row[0] = formatFloat(rec.Frequency)
		row[1] = formatFloat(rec.RMSOutput)
		row[2] = formatFloat(rec.RMSInput)
		row[3] = formatFloat(rec.Gain)
		row[4] = formatFloat(rec.PhaseDiff)

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("error writing record %d: %w", rec.Step, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("error flushing results: %w", err)
	}

	return nil
}

// WriteCSVFile creates or truncates path and writes the records to it
func WriteCSVFile(path string, records []sweep.Record) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating results file: %w", err)
	}
	defer closeWithError(f, &err)

	return WriteCSV(f, records)
}

// ReadCSV parses a results file written by WriteCSV. Only the columns of the
// file are restored; steps are numbered in row order.
func ReadCSV(r io.Reader) ([]sweep.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: error reading header: %w", ErrMalformed, err)
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("%w: unexpected header: %q", ErrMalformed, header)
	}

	var records []sweep.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		var values [5]float64
		for i, field := range row {
			if values[i], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("%w: row %d, column %q: %w", ErrMalformed, len(records)+1, Header[i], err)
			}
		}

		records = append(records, sweep.Record{
			Step:      len(records),
			Frequency: values[0],
			RMSOutput: values[1],
			RMSInput:  values[2],
			Gain:      values[3],
			PhaseDiff: values[4],
		})
	}

	return records, nil
}

// ReadCSVFile reads a results file from path
func ReadCSVFile(path string) ([]sweep.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening results file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

func closeWithError(c io.Closer, err *error) {
	if closeErr := c.Close(); closeErr != nil {
		*err = errors.Join(*err, fmt.Errorf("error closing file: %w", closeErr))
	}
}
