package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seatwisetesting "github.com/seatwise/seatwise/internal/testing"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, cleanup := seatwisetesting.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	return NewRecorder(db, zerolog.Nop())
}

func TestRecorderRecordAndList(t *testing.T) {
	recorder := newTestRecorder(t)

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	recorder.now = func() time.Time { return base }
	recorder.Record("sync:users", "t1", "completed", 3*time.Second, "")

	recorder.now = func() time.Time { return base.Add(time.Minute) }
	recorder.Record("sync:licenses", "t1", "failed", 500*time.Millisecond, "graph unavailable")

	runs, err := recorder.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, "sync:licenses", runs[0].JobName)
	assert.Equal(t, "failed", runs[0].Status)
	assert.Equal(t, "graph unavailable", runs[0].Error)
	assert.Equal(t, int64(500), runs[0].DurationMS)

	assert.Equal(t, "sync:users", runs[1].JobName)
	assert.Equal(t, "t1", runs[1].Subject)
	assert.Equal(t, "completed", runs[1].Status)
	assert.NotEmpty(t, runs[1].ID)

	// started_at backs off from finished_at by the duration.
	assert.Equal(t, base.Unix(), runs[1].FinishedAt)
	assert.Equal(t, base.Add(-3*time.Second).Unix(), runs[1].StartedAt)
}

func TestRecorderListRecentLimit(t *testing.T) {
	recorder := newTestRecorder(t)

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		offset := time.Duration(i) * time.Minute
		recorder.now = func() time.Time { return base.Add(offset) }
		recorder.Record("sync:users", "t1", "completed", time.Second, "")
	}

	runs, err := recorder.ListRecent(3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	// A non-positive limit falls back to the default.
	runs, err = recorder.ListRecent(0)
	require.NoError(t, err)
	assert.Len(t, runs, 5)
}

func TestRecorderListRecentEmpty(t *testing.T) {
	recorder := newTestRecorder(t)

	runs, err := recorder.ListRecent(10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestRecorderLastCompleted(t *testing.T) {
	recorder := newTestRecorder(t)

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	recorder.now = func() time.Time { return base.Add(-time.Hour) }
	recorder.Record("sync:users", "t1", "completed", time.Second, "")

	recorder.now = func() time.Time { return base }
	recorder.Record("sync:users", "t2", "completed", time.Second, "")
	recorder.Record("sync:licenses", "t1", "failed", time.Second, "boom")

	last, err := recorder.LastCompleted()
	require.NoError(t, err)

	// Latest completion per job; failures never count.
	require.Contains(t, last, "sync:users")
	assert.Equal(t, base.Unix(), last["sync:users"].Unix())
	assert.NotContains(t, last, "sync:licenses")
}

func TestRecorderPrune(t *testing.T) {
	recorder := newTestRecorder(t)

	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	recorder.now = func() time.Time { return base.Add(-40 * 24 * time.Hour) }
	recorder.Record("sync:users", "t1", "completed", time.Second, "")

	recorder.now = func() time.Time { return base }
	recorder.Record("sync:users", "t1", "completed", time.Second, "")

	deleted, err := recorder.Prune(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	runs, err := recorder.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, base.Unix(), runs[0].FinishedAt)

	// Nothing left to prune.
	deleted, err = recorder.Prune(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
