package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesHolder(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	assert.Equal(t, filepath.Join(dir, LockFileName), lock.Path())
	h := ReadHolder(lock.Path())
	assert.Equal(t, os.Getpid(), h.PID)
	assert.True(t, h.Running)
	assert.False(t, h.StartedAt.IsZero())
}

func TestAcquireCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)
	defer first.Release()

	second, err := Acquire(dir)
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, errors.Is(err, ErrLocked))

	var lockErr *LockError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, os.Getpid(), lockErr.Holder.PID)
	assert.Contains(t, err.Error(), "another OracleRouter instance")

	// The failed attempt must not clobber the holder record.
	assert.Equal(t, os.Getpid(), ReadHolder(first.Path()).PID)
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))

	again, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestStaleLockFileIsReclaimed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)
	require.NoError(t, os.WriteFile(path, []byte("pid=999999\nstarted=2026-01-01T00:00:00Z\n"), 0o644))

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()
	assert.Equal(t, os.Getpid(), ReadHolder(path).PID)
}

func TestParseHolder(t *testing.T) {
	tests := []struct {
		name    string
		content string
		pid     int
		started bool
	}{
		{"full", "pid=42\nstarted=2026-03-02T09:00:00Z\n", 42, true},
		{"pid only", "pid=7", 7, false},
		{"garbage", "hello world", 0, false},
		{"negative pid", "pid=-3", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := parseHolder(tt.content)
			assert.Equal(t, tt.pid, h.PID)
			assert.Equal(t, tt.started, !h.StartedAt.IsZero())
		})
	}
}

func TestHolderString(t *testing.T) {
	assert.Equal(t, "unknown holder", Holder{}.String())
	s := Holder{PID: 12, StartedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), Running: true}.String()
	assert.True(t, strings.HasPrefix(s, "PID 12 since 2026-03-02T09:00:00Z"))
	assert.Contains(t, Holder{PID: 12}.String(), "stale lock")
}
