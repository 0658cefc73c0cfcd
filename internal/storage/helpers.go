package storage

import (
	"database/sql"
	"errors"

	"github.com/roman-kulish/bodeplot/internal/sweep"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func measurementValues(sessionID int64, rec sweep.Record) []any {
	return []any{
		sessionID,
		rec.Step,
		rec.Frequency,
		rec.SampleRate,
		rec.RMSOutput,
		rec.RMSInput,
		rec.Gain,
		rec.PhaseDiff,
		rec.Output.DC,
		rec.Output.FundamentalFrequency,
		rec.Output.FundamentalMagnitude,
		rec.Input.DC,
		rec.Input.FundamentalFrequency,
		rec.Input.FundamentalMagnitude,
	}
}

func measurementFields(rec *sweep.Record) []any {
	return []any{
		&rec.Step,
		&rec.Frequency,
		&rec.SampleRate,
		&rec.RMSOutput,
		&rec.RMSInput,
		&rec.Gain,
		&rec.PhaseDiff,
		&rec.Output.DC,
		&rec.Output.FundamentalFrequency,
		&rec.Output.FundamentalMagnitude,
		&rec.Input.DC,
		&rec.Input.FundamentalFrequency,
		&rec.Input.FundamentalMagnitude,
	}
}
