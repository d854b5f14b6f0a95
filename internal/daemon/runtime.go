package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrNotRunning means no live daemon owns the pid file.
	ErrNotRunning = errors.New("daemon: not running")
	// ErrAlreadyRunning means a live daemon already owns the pid file.
	ErrAlreadyRunning = errors.New("daemon: already running")
)

// RuntimeState describes a running daemon. It is written next to the pid
// file so `daemon status` can find the API without flags.
type RuntimeState struct {
	PID         int       `json:"pid"`
	Addr        string    `json:"addr"`
	StartedAt   time.Time `json:"started_at"`
	DataDir     string    `json:"data_dir"`
	CatalogPath string    `json:"catalog_path,omitempty"`
	Routing     bool      `json:"routing"`
}

// Runtime manages the pid file of one daemon instance and the state file
// beside it (<pid file>.json).
type Runtime struct {
	PIDFile string
}

func (r Runtime) statePath() string { return r.PIDFile + ".json" }

// Acquire claims the pid file for st.PID, replacing a stale one. The
// returned release removes both files.
func (r Runtime) Acquire(st RuntimeState) (release func(), err error) {
	if cur, err := r.Lookup(); err == nil {
		return nil, fmt.Errorf("%w (pid %d on %s)", ErrAlreadyRunning, cur.PID, cur.Addr)
	} else if !errors.Is(err, ErrNotRunning) {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(r.PIDFile), 0o750); err != nil {
		return nil, fmt.Errorf("daemon: creating pid directory: %w", err)
	}
	if err := os.WriteFile(r.PIDFile, []byte(strconv.Itoa(st.PID)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("daemon: writing pid file: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err == nil {
		err = os.WriteFile(r.statePath(), append(data, '\n'), 0o600)
	}
	if err != nil {
		r.clear()
		return nil, fmt.Errorf("daemon: writing state file: %w", err)
	}
	return r.clear, nil
}

// Lookup returns the state of the daemon that owns the pid file. A pid file
// whose process is gone is removed and reported as ErrNotRunning.
func (r Runtime) Lookup() (RuntimeState, error) {
	pid, err := r.readPID()
	if errors.Is(err, os.ErrNotExist) {
		return RuntimeState{}, ErrNotRunning
	}
	if err != nil {
		return RuntimeState{}, err
	}
	if !processAlive(pid) {
		r.clear()
		return RuntimeState{}, ErrNotRunning
	}

	st := RuntimeState{PID: pid}
	//nolint:gosec // state path derives from the user's pid file
	if data, err := os.ReadFile(r.statePath()); err == nil {
		_ = json.Unmarshal(data, &st)
		st.PID = pid
	}
	return st, nil
}

// Stop sends SIGTERM to the daemon and waits up to timeout for it to exit.
func (r Runtime) Stop(timeout time.Duration) (RuntimeState, error) {
	st, err := r.Lookup()
	if err != nil {
		return st, err
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return st, fmt.Errorf("daemon: finding pid %d: %w", st.PID, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return st, fmt.Errorf("daemon: signaling pid %d: %w", st.PID, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(st.PID) {
			r.clear()
			return st, nil
		}
		time.Sleep(150 * time.Millisecond)
	}
	return st, fmt.Errorf("daemon: pid %d still running after %s", st.PID, timeout)
}

func (r Runtime) readPID() (int, error) {
	//nolint:gosec // pid path is configured by the local user
	data, err := os.ReadFile(r.PIDFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon: invalid pid in %s", r.PIDFile)
	}
	return pid, nil
}

func (r Runtime) clear() {
	_ = os.Remove(r.PIDFile)
	_ = os.Remove(r.statePath())
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// ChildArgs turns the arguments of a `daemon --detach` invocation into the
// arguments of the background child.
func ChildArgs(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return append(out, "--child")
}
