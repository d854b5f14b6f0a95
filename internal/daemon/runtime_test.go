package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeAcquireLookupRelease(t *testing.T) {
	rt := Runtime{PIDFile: filepath.Join(t.TempDir(), "run", "promptrouted.pid")}

	_, err := rt.Lookup()
	require.ErrorIs(t, err, ErrNotRunning)

	started := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	release, err := rt.Acquire(RuntimeState{
		PID:       os.Getpid(),
		Addr:      "127.0.0.1:9999",
		StartedAt: started,
		DataDir:   "/tmp/calls",
		Routing:   true,
	})
	require.NoError(t, err)

	st, err := rt.Lookup()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, "127.0.0.1:9999", st.Addr)
	assert.True(t, st.StartedAt.Equal(started))
	assert.True(t, st.Routing)

	_, err = rt.Acquire(RuntimeState{PID: os.Getpid()})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	release()
	assert.NoFileExists(t, rt.PIDFile)
	assert.NoFileExists(t, rt.statePath())
}

func TestRuntimeStalePIDFile(t *testing.T) {
	rt := Runtime{PIDFile: filepath.Join(t.TempDir(), "promptrouted.pid")}
	// Above the Linux pid ceiling, so no process can own it.
	require.NoError(t, os.WriteFile(rt.PIDFile, []byte("2147483000\n"), 0o600))
	require.NoError(t, os.WriteFile(rt.statePath(), []byte(`{"pid":2147483000}`), 0o600))

	_, err := rt.Lookup()
	require.ErrorIs(t, err, ErrNotRunning)
	assert.NoFileExists(t, rt.PIDFile, "stale pid file removed")

	release, err := rt.Acquire(RuntimeState{PID: os.Getpid()})
	require.NoError(t, err)
	release()

	_, err = rt.Stop(time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRuntimeInvalidPIDFile(t *testing.T) {
	rt := Runtime{PIDFile: filepath.Join(t.TempDir(), "promptrouted.pid")}
	require.NoError(t, os.WriteFile(rt.PIDFile, []byte("not-a-pid"), 0o600))

	_, err := rt.Lookup()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotRunning)
}

func TestChildArgs(t *testing.T) {
	got := ChildArgs([]string{"daemon", "--detach", "--addr", "127.0.0.1:9000", "--detach=true"})
	assert.Equal(t, []string{"daemon", "--addr", "127.0.0.1:9000", "--child"}, got)
}
