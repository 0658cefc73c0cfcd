package storage

import (
	"database/sql"
	"time"
)

// Status is the lifecycle state of a stored sweep session
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

func (s Status) String() string {
	return string(s)
}

// Session is one sweep run
type Session struct {
	ID        int64
	RunID     string
	StartTime time.Time
	EndTime   *time.Time
	Bench     string
	Config    *string
	Status    Status
	Error     *string
}

type sessionData struct {
	ID        int64
	RunID     string
	StartTime time.Time
	EndTime   sql.NullTime
	Bench     string
	Config    sql.NullString
	Status    string
	Error     sql.NullString
}

func (d *sessionData) fields() []any {
	return []any{&d.ID, &d.RunID, &d.StartTime, &d.EndTime, &d.Bench, &d.Config, &d.Status, &d.Error}
}

func (d *sessionData) toSession() *Session {
	sess := Session{
		ID:        d.ID,
		RunID:     d.RunID,
		StartTime: d.StartTime,
		Bench:     d.Bench,
		Status:    Status(d.Status),
	}
	if d.EndTime.Valid {
		sess.EndTime = &d.EndTime.Time
	}
	if d.Config.Valid {
		sess.Config = &d.Config.String
	}
	if d.Error.Valid {
		sess.Error = &d.Error.String
	}
	return &sess
}
