package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/bodeplot/internal/sweep"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "bodeplot.db"))
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func testRecords(n int) []sweep.Record {
	records := make([]sweep.Record, n)
	for i := range records {
		f := 100 * float64(i+1)
		records[i] = sweep.Record{
			Step:       i,
			Frequency:  f,
			SampleRate: 20_000,
			RMSOutput:  0.5 / float64(i+1),
			RMSInput:   0.5,
			Gain:       1 / float64(i+1),
			PhaseDiff:  -0.01 * float64(i),
			Output:     sweep.ChannelSummary{DC: 0.001, FundamentalFrequency: f, FundamentalMagnitude: 0.35},
			Input:      sweep.ChannelSummary{DC: -0.002, FundamentalFrequency: f, FundamentalMagnitude: 0.35},
		}
	}
	return records
}

func TestSqliteStore_Session(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "run-1", "sim", map[string]any{"stepRatio": 1.05})
	require.NoError(t, err)
	assert.Positive(t, id)

	sess, err := s.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, "run-1", sess.RunID)
	assert.Equal(t, "sim", sess.Bench)
	assert.Equal(t, StatusRunning, sess.Status)
	assert.False(t, sess.StartTime.IsZero())
	assert.Nil(t, sess.EndTime)
	assert.Nil(t, sess.Error)
	require.NotNil(t, sess.Config)
	assert.JSONEq(t, `{"stepRatio":1.05}`, *sess.Config)

	require.NoError(t, s.FinishSession(ctx, id, StatusAborted, "sweep step 2 at 400 Hz: boom"))

	sess, err = s.SessionByRunID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, sess.Status)
	require.NotNil(t, sess.EndTime)
	require.NotNil(t, sess.Error)
	assert.Equal(t, "sweep step 2 at 400 Hz: boom", *sess.Error)
}

func TestSqliteStore_ConfigTypes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1, err := s.CreateSession(ctx, "run-1", "sim", "raw: yaml")
	require.NoError(t, err)
	id2, err := s.CreateSession(ctx, "run-2", "sim", []byte("bytes"))
	require.NoError(t, err)
	id3, err := s.CreateSession(ctx, "run-3", "sim", nil)
	require.NoError(t, err)

	sess, err := s.Session(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "raw: yaml", *sess.Config)

	sess, err = s.Session(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, "bytes", *sess.Config)

	sess, err = s.Session(ctx, id3)
	require.NoError(t, err)
	assert.Nil(t, sess.Config)

	_, err = s.CreateSession(ctx, "run-4", "sim", make(chan int))
	assert.Error(t, err)
}

func TestSqliteStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, runID := range []string{"a", "b", "c"} {
		_, err := s.CreateSession(ctx, runID, "hantek", nil)
		require.NoError(t, err)
	}

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "a", sessions[0].RunID)
	assert.Equal(t, "c", sessions[2].RunID)

	_, err = s.CreateSession(ctx, "a", "hantek", nil)
	assert.Error(t, err, "run IDs are unique")
}

func TestSqliteStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "run-1", "sim", nil)
	require.NoError(t, err)

	_, err = s.Session(ctx, id+1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.SessionByRunID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.FinishSession(ctx, id+1, StatusCompleted, ""), ErrNotFound)
	assert.Error(t, s.FinishSession(ctx, id, StatusRunning, ""))
}

func TestSqliteStore_Records(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "run-1", "sim", nil)
	require.NoError(t, err)

	// more than one batch
	records := testRecords(maxBatchRows + 20)
	require.NoError(t, s.StoreRecords(ctx, id, records))
	require.NoError(t, s.StoreRecords(ctx, id, nil))

	got, err := s.Records(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	got, err = s.Records(ctx, id, WithFrequencyRange(250, 500))
	require.NoError(t, err)
	assert.Equal(t, records[2:5], got)

	_, err = s.Records(ctx, id, WithFrequencyRange(500, 250))
	assert.Error(t, err)

	got, err = s.Records(ctx, id+1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSqliteStore_RecordsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "run-1", "sim", nil)
	require.NoError(t, err)

	records := testRecords(3)
	require.NoError(t, s.StoreRecords(ctx, id, records[:1]))

	// step 0 is already stored, so the whole batch is rejected
	assert.Error(t, s.StoreRecords(ctx, id, records))

	got, err := s.Records(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, records[:1], got)
}

func TestSqliteStore_Close(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "bodeplot.db"))

	_, err := s.CreateSession(context.Background(), "run-1", "sim", nil)
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
