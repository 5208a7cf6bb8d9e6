package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Desktop shows a native popup through the platform's notification tool.
type Desktop struct {
	GOOS    string
	Timeout time.Duration
	// lookPath and command are replaced in tests.
	lookPath func(string) (string, error)
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func NewDesktop(timeout time.Duration) *Desktop {
	return &Desktop{GOOS: runtime.GOOS, Timeout: timeout, lookPath: exec.LookPath, command: exec.CommandContext}
}

func (*Desktop) Name() string { return "desktop" }

func (d *Desktop) Notify(ctx context.Context, title, body string) error {
	name, args, err := d.argv(title, body)
	if err != nil {
		return err
	}
	if _, err := d.lookPath(name); err != nil {
		return fmt.Errorf("%s not available: %w", name, err)
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	out, err := d.command(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %v; out=%s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *Desktop) argv(title, body string) (string, []string, error) {
	switch d.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		args := []string{"--app-name", AppName}
		if d.Timeout > 0 {
			args = append(args, "--expire-time", strconv.FormatInt(d.Timeout.Milliseconds(), 10))
		}
		return "notify-send", append(args, title, body), nil
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleString(body), appleString(AppName+": "+title))
		return "osascript", []string{"-e", script}, nil
	case "windows":
		script := fmt.Sprintf(`[void][System.Reflection.Assembly]::LoadWithPartialName('System.Windows.Forms');`+
			`$n=New-Object System.Windows.Forms.NotifyIcon;$n.Icon=[System.Drawing.SystemIcons]::Information;`+
			`$n.Visible=$true;$n.ShowBalloonTip(10000,%s,%s,'Info');Start-Sleep -s 1`, psString(title), psString(body))
		return "powershell", []string{"-NoProfile", "-Command", script}, nil
	default:
		return "", nil, fmt.Errorf("desktop notifications unsupported on %s", d.GOOS)
	}
}

func appleString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func psString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
