package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// ErrAutostartUnsupported is returned on platforms without a generated unit.
var ErrAutostartUnsupported = errors.New("autostart is not supported on this platform")

// Unit is a generated service definition and where it belongs.
type Unit struct {
	Path    string
	Content string
	Enable  string
}

var systemdTmpl = template.Must(template.New("systemd").Parse(`[Unit]
Description=Reminder daemon
After=default.target

[Service]
Type=simple
ExecStart={{.Exe}}{{range .Args}} {{.}}{{end}} daemon run
Restart=always
RestartSec=10

[Install]
WantedBy=default.target
`))

var launchdTmpl = template.Must(template.New("launchd").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exe}}</string>{{range .Args}}
        <string>{{.}}</string>{{end}}
        <string>daemon</string>
        <string>run</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
</dict>
</plist>
`))

// startupTmpl is a batch file for the per-user Startup folder.
var startupTmpl = template.Must(template.New("startup").Parse("@echo off\r\n" +
	`start "" /MIN "{{.Exe}}"{{range .Args}} "{{.}}"{{end}} daemon run` + "\r\n"))

const launchdLabel = "com.reminder.daemon"

// RenderUnit builds the autostart definition for goos. args are global flags
// placed before the daemon subcommand.
func RenderUnit(goos, home, exe string, args ...string) (Unit, error) {
	data := struct {
		Exe, Label string
		Args       []string
	}{Exe: exe, Label: launchdLabel, Args: args}
	var buf bytes.Buffer
	switch goos {
	case "linux":
		if err := systemdTmpl.Execute(&buf, data); err != nil {
			return Unit{}, err
		}
		return Unit{
			Path:    filepath.Join(home, ".config", "systemd", "user", "reminder.service"),
			Content: buf.String(),
			Enable:  "systemctl --user enable --now reminder",
		}, nil
	case "darwin":
		if err := launchdTmpl.Execute(&buf, data); err != nil {
			return Unit{}, err
		}
		path := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
		return Unit{Path: path, Content: buf.String(), Enable: "launchctl load " + path}, nil
	case "windows":
		if err := startupTmpl.Execute(&buf, data); err != nil {
			return Unit{}, err
		}
		path := filepath.Join(home, "AppData", "Roaming", "Microsoft", "Windows", "Start Menu", "Programs", "Startup", "reminder-daemon.cmd")
		return Unit{Path: path, Content: buf.String(), Enable: `cmd /c "` + path + `"`}, nil
	default:
		return Unit{}, fmt.Errorf("%w: %s", ErrAutostartUnsupported, goos)
	}
}

// Install writes u to disk.
func (u Unit) Install() error {
	if err := os.MkdirAll(filepath.Dir(u.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(u.Path, []byte(u.Content), 0o644)
}
