package heartbeat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestBeatAndLast(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), FileName))

	_, ok, err := f.Last()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Beat(now))
	last, ok, err := f.Last()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, now.Equal(last))

	require.NoError(t, f.Remove())
	require.NoError(t, f.Remove())
}

func TestLastRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("yesterday"), 0o600))
	_, _, err := New(path).Last()
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	stale := 3 * time.Minute
	cases := []struct {
		name     string
		alive    bool
		age      time.Duration
		hasBeat  bool
		expected State
	}{
		{"alive and fresh", true, time.Minute, true, Running},
		{"alive and stale", true, 10 * time.Minute, true, Stuck},
		{"alive without beat", true, 0, false, Starting},
		{"dead but fresh", false, time.Minute, true, Running},
		{"dead and stale", false, 10 * time.Minute, true, NotRunning},
		{"nothing at all", false, 0, false, NotRunning},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, Classify(c.alive, now.Add(-c.age), c.hasBeat, now, stale))
		})
	}
}

func TestCheck(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, f.Beat(now.Add(-time.Hour)))

	st, err := f.Check(42, true, now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Stuck, st.State)
	assert.Equal(t, "stuck", st.StateName)
	assert.Equal(t, time.Hour, st.Age)
	assert.Equal(t, 42, st.PID)
}
