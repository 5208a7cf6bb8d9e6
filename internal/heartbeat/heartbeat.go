// Package heartbeat records that the daemon loop is still turning and
// classifies daemon health from it.
package heartbeat

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileName is the heartbeat file name inside the data directory.
const FileName = "daemon.heartbeat"

type File struct {
	path string
}

func New(path string) *File { return &File{path: path} }

func (f *File) Path() string { return f.path }

// Beat records now. The file is replaced atomically so readers never see a
// partial timestamp.
func (f *File) Beat(now time.Time) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".heartbeat.*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(now.Format(time.RFC3339Nano) + "\n"); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Last returns the recorded beat. ok is false when there is none.
func (f *File) Last() (t time.Time, ok bool, err error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err = time.Parse(time.RFC3339Nano, strings.TrimSpace(string(b)))
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type State int

const (
	NotRunning State = iota
	Starting
	Running
	Stuck
)

func (s State) String() string {
	switch s {
	case NotRunning:
		return "not running"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stuck:
		return "stuck"
	default:
		return "unknown"
	}
}

// Classify combines process liveness with heartbeat freshness. A live
// process with a stale beat is stuck. A fresh beat without a live process
// marker means the loop runs under another supervisor.
func Classify(alive bool, last time.Time, hasBeat bool, now time.Time, staleAfter time.Duration) State {
	fresh := hasBeat && now.Sub(last) <= staleAfter
	switch {
	case alive && fresh:
		return Running
	case alive && hasBeat:
		return Stuck
	case alive:
		return Starting
	case fresh:
		return Running
	default:
		return NotRunning
	}
}

// Status is a point-in-time health report.
type Status struct {
	State         State         `json:"-"`
	StateName     string        `json:"state"`
	PID           int           `json:"pid,omitempty"`
	LastHeartbeat *time.Time    `json:"last_heartbeat,omitempty"`
	Age           time.Duration `json:"age_ns,omitempty"`
}

// Check reads the heartbeat and classifies it against a liveness result.
func (f *File) Check(pid int, alive bool, now time.Time, staleAfter time.Duration) (Status, error) {
	last, ok, err := f.Last()
	if err != nil {
		return Status{}, err
	}
	st := Status{PID: pid}
	if ok {
		st.LastHeartbeat = &last
		st.Age = now.Sub(last)
	}
	st.State = Classify(alive, last, ok, now, staleAfter)
	st.StateName = st.State.String()
	return st, nil
}
