package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	name  string
	err   error
	calls int
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(context.Context, string, string) error {
	f.calls++
	return f.err
}

func TestChainFallsBack(t *testing.T) {
	broken := &fakeNotifier{name: "desktop", err: errors.New("no display")}
	fallback := &fakeNotifier{name: "log"}
	never := &fakeNotifier{name: "never"}

	err := Chain{broken, fallback, never}.Notify(context.Background(), "t", "b")
	require.NoError(t, err)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Zero(t, never.calls)
}

func TestChainReportsEveryFailure(t *testing.T) {
	a := &fakeNotifier{name: "a", err: errors.New("boom")}
	b := &fakeNotifier{name: "b", err: errors.New("bang")}

	err := Chain{a, b}.Notify(context.Background(), "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: boom")
	assert.Contains(t, err.Error(), "b: bang")

	assert.Error(t, Chain{}.Notify(context.Background(), "t", "b"))
}

func TestFanoutCallsAll(t *testing.T) {
	a := &fakeNotifier{name: "a", err: errors.New("boom")}
	b := &fakeNotifier{name: "b"}

	err := Fanout{a, b}.Notify(context.Background(), "t", "b")
	assert.Error(t, err)
	assert.Equal(t, 1, b.calls)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	require.NoError(t, Log{Logger: &l}.Notify(context.Background(), "Stand up", "stretch"))
	assert.Contains(t, buf.String(), "REMINDER: Stand up - stretch")
}

func TestWebhookPostsJSON(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second)
	w.Headers = map[string]string{"X-Token": "secret"}
	require.NoError(t, w.Notify(context.Background(), "Pay rent", "today"))
	assert.Equal(t, "Pay rent", got.Title)
	assert.Equal(t, "today", got.Body)
	assert.Equal(t, AppName, got.App)
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Notify(context.Background(), "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")

	assert.Error(t, NewWebhook("", time.Second).Notify(context.Background(), "t", "b"))
}

func TestDesktopArgv(t *testing.T) {
	d := NewDesktop(10 * time.Second)

	d.GOOS = "linux"
	name, args, err := d.argv("Title", "Body")
	require.NoError(t, err)
	assert.Equal(t, "notify-send", name)
	assert.Equal(t, []string{"--app-name", AppName, "--expire-time", "10000", "Title", "Body"}, args)

	d.GOOS = "darwin"
	name, args, err = d.argv(`say "hi"`, "Body")
	require.NoError(t, err)
	assert.Equal(t, "osascript", name)
	assert.Contains(t, args[1], `say \"hi\"`)

	d.GOOS = "plan9"
	_, _, err = d.argv("t", "b")
	assert.Error(t, err)
}

func TestDesktopMissingTool(t *testing.T) {
	d := NewDesktop(time.Second)
	d.GOOS = "linux"
	d.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	err := d.Notify(context.Background(), "t", "b")
	assert.ErrorIs(t, err, exec.ErrNotFound)
}
