package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Spawn starts exe detached from the calling terminal and returns its pid.
func Spawn(exe string, args ...string) (int, error) {
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	defer devnull.Close()

	cmd := exec.Command(exe, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", exe, err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}

// Stop terminates the recorded daemon and waits up to timeout for it to exit.
// It reports false when no daemon was running.
func (p *PIDFile) Stop(timeout time.Duration) (bool, error) {
	pid, alive, err := p.Running()
	if err != nil || !alive {
		return false, err
	}
	if err := Terminate(pid); err != nil {
		return false, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	deadline := time.Now().Add(timeout)
	for Alive(pid) {
		if time.Now().After(deadline) {
			return true, fmt.Errorf("pid %d did not exit within %s", pid, timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return true, p.Remove()
}
