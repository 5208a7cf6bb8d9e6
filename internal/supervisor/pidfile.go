package supervisor

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PIDFileName is the process marker name inside the data directory.
const PIDFileName = "daemon.pid"

// ErrAlreadyRunning is returned when another live process holds the marker.
var ErrAlreadyRunning = errors.New("daemon already running")

// PIDFile is the process marker of the designated daemon instance.
type PIDFile struct {
	path string
}

func NewPIDFile(path string) *PIDFile { return &PIDFile{path: path} }

func (p *PIDFile) Path() string { return p.path }

// Read returns the recorded pid, or 0 when there is no marker.
func (p *PIDFile) Read() (int, error) {
	b, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("corrupt pid file %s: %q", p.path, strings.TrimSpace(string(b)))
	}
	return pid, nil
}

func (p *PIDFile) Write(pid int) error {
	return os.WriteFile(p.path, []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Running returns the recorded pid and whether that process is alive.
// A marker left behind by a dead process is removed.
func (p *PIDFile) Running() (int, bool, error) {
	pid, err := p.Read()
	if err != nil || pid == 0 {
		return 0, false, err
	}
	if Alive(pid) {
		return pid, true, nil
	}
	return pid, false, p.Remove()
}

// Claim designates self as the running instance. It fails when a different
// live process already holds the marker.
func (p *PIDFile) Claim(self int) error {
	pid, alive, err := p.Running()
	if err != nil {
		return err
	}
	if alive && pid != self {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	return p.Write(self)
}

// Release removes the marker if it still names self.
func (p *PIDFile) Release(self int) error {
	pid, err := p.Read()
	if err != nil || pid != self {
		return err
	}
	return p.Remove()
}
