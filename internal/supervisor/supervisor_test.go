package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFileRoundTrip(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), PIDFileName))

	pid, err := p.Read()
	require.NoError(t, err)
	assert.Zero(t, pid)

	require.NoError(t, p.Write(1234))
	pid, err = p.Read()
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)

	require.NoError(t, p.Remove())
	require.NoError(t, p.Remove())
}

func TestPIDFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), PIDFileName)
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))
	_, err := NewPIDFile(path).Read()
	assert.Error(t, err)
}

func TestClaimRefusesOtherLiveProcess(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), PIDFileName))
	self := os.Getpid()

	require.NoError(t, p.Claim(self))
	require.NoError(t, p.Claim(self))

	err := p.Claim(self + 1)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, p.Release(self+1))
	pid, _ := p.Read()
	assert.Equal(t, self, pid)

	require.NoError(t, p.Release(self))
	pid, _ = p.Read()
	assert.Zero(t, pid)
}

func TestRunningClearsStaleMarker(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), PIDFileName))
	// Pids near the top of the range are practically never in use.
	require.NoError(t, p.Write(1<<22-3))

	_, alive, err := p.Running()
	require.NoError(t, err)
	assert.False(t, alive)
	_, err = os.Stat(p.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestAliveSelf(t *testing.T) {
	assert.True(t, Alive(os.Getpid()))
	assert.False(t, Alive(0))
}

func TestRenderUnit(t *testing.T) {
	u, err := RenderUnit("linux", "/home/ada", "/usr/local/bin/reminder")
	require.NoError(t, err)
	assert.Equal(t, "/home/ada/.config/systemd/user/reminder.service", u.Path)
	assert.Contains(t, u.Content, "ExecStart=/usr/local/bin/reminder daemon run")

	u, err = RenderUnit("linux", "/home/ada", "/usr/local/bin/reminder", "--data-dir", "/srv/rem")
	require.NoError(t, err)
	assert.Contains(t, u.Content, "ExecStart=/usr/local/bin/reminder --data-dir /srv/rem daemon run")

	u, err = RenderUnit("darwin", "/Users/ada", "/opt/reminder")
	require.NoError(t, err)
	assert.Contains(t, u.Path, "LaunchAgents/com.reminder.daemon.plist")
	assert.Contains(t, u.Content, "<string>/opt/reminder</string>")

	u, err = RenderUnit("windows", `C:\Users\ada`, `C:\bin\reminder.exe`, "--data-dir", `D:\rem`)
	require.NoError(t, err)
	assert.Equal(t, "reminder-daemon.cmd", filepath.Base(u.Path))
	assert.Contains(t, u.Path, filepath.Join("Programs", "Startup"))
	assert.Contains(t, u.Content, `start "" /MIN "C:\bin\reminder.exe" "--data-dir" "D:\rem" daemon run`)

	_, err = RenderUnit("plan9", "/", "/bin/reminder")
	assert.ErrorIs(t, err, ErrAutostartUnsupported)
}

func TestInstallWritesUnit(t *testing.T) {
	home := t.TempDir()
	u, err := RenderUnit("linux", home, "/bin/reminder")
	require.NoError(t, err)
	require.NoError(t, u.Install())
	b, err := os.ReadFile(u.Path)
	require.NoError(t, err)
	assert.Equal(t, u.Content, string(b))
}
