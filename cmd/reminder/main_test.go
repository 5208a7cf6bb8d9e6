package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminder/internal/domain"
	"reminder/internal/store"
)

var fixedNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	var cli CLI
	g := &Global{Out: &out, Now: func() time.Time { return fixedNow }}
	parser, err := newParser(&cli, g,
		kong.Writers(&out, &out),
		kong.Exit(func(code int) { t.Fatalf("unexpected exit %d", code) }),
	)
	require.NoError(t, err)

	full := append([]string{"--config", filepath.Join(dir, "absent.yaml"), "--data-dir", dir}, args...)
	ctx, err := parser.Parse(full)
	if err != nil {
		return out.String(), err
	}
	err = ctx.Run(&cli)
	g.close()
	return out.String(), err
}

var shortIDRe = regexp.MustCompile(`Added reminder ([0-9a-f]{8})`)

func addReminder(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, append([]string{"add"}, args...)...)
	require.NoError(t, err, out)
	m := shortIDRe.FindStringSubmatch(out)
	require.NotNil(t, m, out)
	return m[1]
}

func TestAddAndList(t *testing.T) {
	dir := t.TempDir()
	addReminder(t, dir, "stretch", "--time", "30m", "--tags", "health,break")
	addReminder(t, dir, "standup", "--cron", "every weekday at 8:30", "-d", "daily sync")

	out, err := run(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "stretch")
	assert.Contains(t, out, "0 30 8 * * 1-5")

	out, err = run(t, dir, "list", "--tag", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "stretch")
	assert.NotContains(t, out, "standup")

	rs, err := store.NewFileRepo(filepath.Join(dir, store.FileName)).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rs, 2)
}

func TestAddRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "add", "x")
	assert.ErrorContains(t, err, "--time or --cron")

	_, err = run(t, dir, "add", "x", "--time", "30m", "--cron", "daily")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = run(t, dir, "add", "x", "--time", "someday")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = run(t, dir, "add", "x", "--cron", "whenever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every weekday at 8:30")
}

func TestEditPauseResumeDelete(t *testing.T) {
	dir := t.TempDir()
	id := addReminder(t, dir, "water", "--time", "1h")

	out, err := run(t, dir, "edit", id, "--cron", "every 2 hours", "--title", "drink water", "--add-tags", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "0 0 */2 * * *")
	assert.Contains(t, out, "drink water")

	out, err = run(t, dir, "pause", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Paused")

	out, err = run(t, dir, "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "paused")

	out, err = run(t, dir, "resume", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Resumed")

	out, err = run(t, dir, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted")

	out, err = run(t, dir, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "not found")
}

func TestExportImportAndTags(t *testing.T) {
	src := t.TempDir()
	addReminder(t, src, "a", "--time", "1d", "--tags", "home")
	addReminder(t, src, "b", "--cron", "daily", "--tags", "home,work")

	file := filepath.Join(t.TempDir(), "backup.json")
	out, err := run(t, src, "export", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2")

	dst := t.TempDir()
	out, err = run(t, dst, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2")

	out, err = run(t, dst, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped 2")

	out, err = run(t, dst, "tags")
	require.NoError(t, err)
	assert.Regexp(t, `home\s+2`, out)
	assert.Regexp(t, `work\s+1`, out)
}

func TestHistoryEmpty(t *testing.T) {
	out, err := run(t, t.TempDir(), "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No deliveries")
}

func TestLogsCommands(t *testing.T) {
	dir := t.TempDir()
	addReminder(t, dir, "logged", "--time", "5m")

	out, err := run(t, dir, "logs", "show", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "reminder added")

	out, err = run(t, dir, "logs", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "reminder.log")

	_, err = run(t, dir, "logs", "clear")
	require.NoError(t, err)
}

func TestDaemonStatusWhenStopped(t *testing.T) {
	out, err := run(t, t.TempDir(), "daemon", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

func TestDaemonStatusStuck(t *testing.T) {
	dir := t.TempDir()
	// Our own pid is certainly alive; a heartbeat far in the past makes it stuck.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "daemon.pid"), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "daemon.heartbeat"), []byte(fixedNow.Add(-time.Hour).Format(time.RFC3339Nano)), 0o600))

	out, err := run(t, dir, "daemon", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "stuck")
}

func TestDaemonInstallPrint(t *testing.T) {
	if _, err := os.UserHomeDir(); err != nil {
		t.Skip("no home directory")
	}
	out, err := run(t, t.TempDir(), "daemon", "install", "--print")
	if err != nil {
		assert.ErrorContains(t, err, "not supported")
		return
	}
	assert.Contains(t, out, "daemon run")
}
