// Package storage persists sweep sessions and their per-step measurements in
// a SQLite database.
package storage

import (
	"context"

	"github.com/roman-kulish/bodeplot/internal/sweep"
)

// Store provides an interface for managing sweep data storage operations.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession records the start of a sweep run and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - runID: Caller generated run identifier, unique per database
	//   - bench: Name of the bench the sweep runs on (e.g., "sim", "hantek")
	//   - config: Optional sweep configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, runID, bench string, config any) (sessionID int64, err error)

	// FinishSession marks a session completed or aborted. errMsg is stored
	// only when not empty.
	FinishSession(ctx context.Context, sessionID int64, status Status, errMsg string) error

	// Session retrieves a specific session by its ID.
	Session(ctx context.Context, id int64) (session *Session, err error)

	// SessionByRunID retrieves a session by the run identifier it was created with.
	SessionByRunID(ctx context.Context, runID string) (session *Session, err error)

	// Sessions returns all sessions ordered by start time in ascending order.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreRecords saves sweep records of a session.
	// All records are stored in a single atomic transaction.
	StoreRecords(ctx context.Context, sessionID int64, records []sweep.Record) error

	// Records returns the records of a session ordered by step, optionally
	// limited to a frequency range.
	Records(ctx context.Context, sessionID int64, opts ...RecordsOption) ([]sweep.Record, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}
