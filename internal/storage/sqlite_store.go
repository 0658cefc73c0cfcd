package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/bodeplot/internal/sweep"
)

// maxBatchRows keeps a batch insert well below the SQLite host parameter limit
const maxBatchRows = 500

// ErrNotFound is returned when a session does not exist
var ErrNotFound = errors.New("not found")

var _ Store = (*SqliteStore)(nil)

// RecordsOption narrows the records returned by Records
type RecordsOption func(q *recordsQuery)

type recordsQuery struct {
	minFreq *float64
	maxFreq *float64
}

// WithFrequencyRange keeps only records with minFreq <= frequency <= maxFreq
func WithFrequencyRange(minFreq, maxFreq float64) RecordsOption {
	return func(q *recordsQuery) {
		q.minFreq = &minFreq
		q.maxFreq = &maxFreq
	}
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore returns a store backed by the database file at dbPath.
// Connections are opened lazily; the schema is created with the first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, runID, bench string, config any) (sessionID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch c := config.(type) {
		case string:
			configData.Valid = true
			configData.String = c

		case []byte:
			configData.Valid = true
			configData.String = string(c)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, runID, time.Now().UTC(), bench, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) FinishSession(ctx context.Context, sessionID int64, status Status, errMsg string) (err error) {
	switch status {
	case StatusCompleted, StatusAborted:
	default:
		return fmt.Errorf("invalid final status: %q", status)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, finishSessionSQL, time.Now().UTC(), string(status), toNullString(errMsg), sessionID)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}

	return nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (*Session, error) {
	return s.querySession(ctx, selectSessionSQL, id)
}

func (s *SqliteStore) SessionByRunID(ctx context.Context, runID string) (*Session, error) {
	return s.querySession(ctx, selectSessionByRunIDSQL, runID)
}

func (s *SqliteStore) querySession(ctx context.Context, query string, key any) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data sessionData
	if err = stmt.QueryRowContext(ctx, key).Scan(data.fields()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("session %v: %w", key, ErrNotFound)
			return
		}
		err = fmt.Errorf("scanning session: %w", err)
		return
	}

	return data.toSession(), nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data sessionData
		if err = rows.Scan(data.fields()...); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, data.toSession())
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating sessions: %w", err)
	}
	return
}

func (s *SqliteStore) StoreRecords(ctx context.Context, sessionID int64, records []sweep.Record) (err error) {
	if len(records) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for start := 0; start < len(records); start += maxBatchRows {
		batch := records[start:min(start+maxBatchRows, len(records))]

		if err = insertBatch(ctx, tx, sessionID, batch); err != nil {
			return fmt.Errorf("batch inserting measurements: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, sessionID int64, records []sweep.Record) error {
	const valuesPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	values := make([]any, 0, len(records)*14)

	var sb strings.Builder

	sb.WriteString(insertMeasurementSQL)

	for i, rec := range records {
		values = append(values, measurementValues(sessionID, rec)...)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	_, err := tx.ExecContext(ctx, sb.String(), values...)
	return err
}

func (s *SqliteStore) Records(ctx context.Context, sessionID int64, opts ...RecordsOption) (records []sweep.Record, err error) {
	var q recordsQuery
	for _, opt := range opts {
		opt(&q)
	}

	query := selectMeasurementsSQL
	args := []any{sessionID}

	if q.minFreq != nil && q.maxFreq != nil {
		if *q.minFreq > *q.maxFreq {
			return nil, fmt.Errorf("invalid frequency range: %v > %v", *q.minFreq, *q.maxFreq)
		}
		query += " AND frequency BETWEEN ? AND ?"
		args = append(args, *q.minFreq, *q.maxFreq)
	}
	query += " ORDER BY step"

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		err = fmt.Errorf("querying measurements: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var rec sweep.Record
		if err = rows.Scan(measurementFields(&rec)...); err != nil {
			err = fmt.Errorf("scanning measurement: %w", err)
			return
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating measurements: %w", err)
	}
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
