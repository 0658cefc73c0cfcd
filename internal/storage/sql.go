package storage

import (
	_ "embed"
)

var (
	//go:embed schema.sql
	initSchemaSQL string
)

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions (start_time);
CREATE INDEX IF NOT EXISTS idx_measurements_frequency ON measurements (session_id, frequency);`

	insertSessionSQL = `
INSERT INTO sessions (
                      run_id,
                      start_time,
                      bench,
                      config)
VALUES (?, ?, ?, ?)`

	finishSessionSQL = `
UPDATE sessions
SET end_time = ?,
    status   = ?,
    error    = ?
WHERE
    id = ?`

	selectSessionSQL = `
SELECT
    id,
    run_id,
    start_time,
    end_time,
    bench,
    config,
    status,
    error
FROM sessions
WHERE
    id = ?`

	selectSessionByRunIDSQL = `
SELECT
    id,
    run_id,
    start_time,
    end_time,
    bench,
    config,
    status,
    error
FROM sessions
WHERE
    run_id = ?`

	selectSessionsSQL = `
SELECT
    id,
    run_id,
    start_time,
    end_time,
    bench,
    config,
    status,
    error
FROM sessions
ORDER BY start_time, id`

	insertMeasurementSQL = `
INSERT INTO measurements (session_id,
                          step,
                          frequency,
                          sample_rate,
                          rms_output,
                          rms_input,
                          gain,
                          phase_diff,
                          output_dc,
                          output_fundamental,
                          output_magnitude,
                          input_dc,
                          input_fundamental,
                          input_magnitude)
VALUES `

	selectMeasurementsSQL = `
SELECT
    step,
    frequency,
    sample_rate,
    rms_output,
    rms_input,
    gain,
    phase_diff,
    output_dc,
    output_fundamental,
    output_magnitude,
    input_dc,
    input_fundamental,
    input_magnitude
FROM measurements
WHERE
    session_id = ?`
)
