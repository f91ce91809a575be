package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionLifecycle(t *testing.T) {
	db := openTemp(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.SessionStarted(Session{
		ID: "a", Remote: "10.0.0.2:5000", Transport: "tcp", Codec: "zstd",
		Width: 1920, Height: 1080, StartedAt: t0,
	}))
	require.NoError(t, db.SessionStarted(Session{
		ID: "b", Remote: "10.0.0.3:5000", Transport: "quic", Codec: "deflate",
		Width: 800, Height: 600, StartedAt: t0.Add(time.Minute),
	}))
	require.NoError(t, db.SessionEnded("a", t0.Add(30*time.Second), 10, 2048, 5, errors.New("read packet header: EOF")))

	got, err := db.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "b", got[0].ID)
	assert.True(t, got[0].EndedAt.IsZero())
	assert.Empty(t, got[0].Error)

	a := got[1]
	assert.Equal(t, 1920, a.Width)
	assert.Equal(t, int64(10), a.Packets)
	assert.Equal(t, int64(2048), a.Bytes)
	assert.Equal(t, int64(5), a.Commands)
	assert.Equal(t, t0.Add(30*time.Second), a.EndedAt)
	assert.Equal(t, "read packet header: EOF", a.Error)
}

func TestSessionEndedUnknown(t *testing.T) {
	db := openTemp(t)
	assert.Error(t, db.SessionEnded("missing", time.Now(), 0, 0, 0, nil))
}

func TestAuthFailures(t *testing.T) {
	db := openTemp(t)
	now := time.Now()
	require.NoError(t, db.AuthFailed("10.0.0.9", "bad_secret", now.Add(-2*time.Hour)))
	require.NoError(t, db.AuthFailed("10.0.0.9", "bad_secret", now))
	require.NoError(t, db.AuthFailed("10.0.0.8", "bad_secret", now))

	n, err := db.AuthFailures("10.0.0.9", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SessionStarted(Session{ID: "x", Remote: "r", Transport: "ws", Codec: "zstd", Width: 1, Height: 1, StartedAt: time.Now()}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Recent(1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
