package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminder/internal/domain"
	"reminder/internal/heartbeat"
	"reminder/internal/journal"
	"reminder/internal/normalize"
	"reminder/internal/store"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	err    error
}

func (*fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) Notify(_ context.Context, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, body)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titles)
}

// racingRepo simulates a command-line edit landing between the daemon's
// load and its commit.
type racingRepo struct {
	store.Repository
	before func()
}

func (r racingRepo) UpdateMany(ctx context.Context, ids []uuid.UUID, fn func(*domain.Reminder) bool) (int, error) {
	if r.before != nil {
		r.before()
	}
	return r.Repository.UpdateMany(ctx, ids, fn)
}

func newRepo(t *testing.T) store.Repository {
	t.Helper()
	return store.NewFileRepo(filepath.Join(t.TempDir(), store.FileName))
}

func TestRelativeOneTimeFiresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	n := &fakeNotifier{}
	svc := NewService(repo, n, nil)

	at, err := normalize.ParseTime("30m", t0)
	require.NoError(t, err)
	r, err := domain.NewOneTime("stretch", nil, at, nil, t0)
	require.NoError(t, err)
	require.NoError(t, repo.Add(ctx, r))
	assert.Equal(t, t0.Add(30*time.Minute), *r.NextTrigger)

	rep := svc.RunCycle(ctx, t0.Add(29*time.Minute))
	assert.Zero(t, rep.Due)

	rep = svc.RunCycle(ctx, t0.Add(30*time.Minute))
	assert.Equal(t, 1, rep.Delivered)
	assert.Equal(t, 1, rep.Committed)

	got, err := repo.Resolve(ctx, r.ID.String())
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Nil(t, got.NextTrigger)

	rep = svc.RunCycle(ctx, t0.Add(time.Hour))
	assert.Zero(t, rep.Due)
	assert.Equal(t, 1, n.count())
}

func TestRecurringAdvancesPastNow(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	n := &fakeNotifier{}
	svc := NewService(repo, n, nil)

	desc := "drink water"
	r, err := domain.NewRecurring("water", &desc, "0 0 * * * *", nil, t0)
	require.NoError(t, err)
	require.NoError(t, repo.Add(ctx, r))

	// A daemon that was down for a while fires once, not once per missed hour.
	late := t0.Add(3*time.Hour + 5*time.Minute)
	rep := svc.RunCycle(ctx, late)
	assert.Equal(t, 1, rep.Delivered)
	assert.Equal(t, []string{"drink water"}, n.bodies)

	got, err := repo.Resolve(ctx, r.ID.String())
	require.NoError(t, err)
	assert.Equal(t, t0.Add(4*time.Hour), *got.NextTrigger)
	assert.False(t, got.Completed)
}

func TestNotifyFailureStillReschedules(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	n := &fakeNotifier{err: errors.New("no display")}
	svc := NewService(repo, n, nil)

	r, err := domain.NewOneTime("call", nil, t0, nil, t0)
	require.NoError(t, err)
	require.NoError(t, repo.Add(ctx, r))

	rep := svc.RunCycle(ctx, t0)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Committed)

	rep = svc.RunCycle(ctx, t0.Add(10*time.Second))
	assert.Zero(t, rep.Due)
	assert.Equal(t, 1, n.count())
}

func TestPausedAndCompletedAreSkipped(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	n := &fakeNotifier{}
	svc := NewService(repo, n, nil)

	paused, err := domain.NewOneTime("paused", nil, t0, nil, t0)
	require.NoError(t, err)
	paused.Pause()
	done, err := domain.NewOneTime("done", nil, t0, nil, t0)
	require.NoError(t, err)
	require.NoError(t, done.CalculateNextTrigger(t0))
	require.NoError(t, repo.Save(ctx, []domain.Reminder{paused, done}))

	rep := svc.RunCycle(ctx, t0.Add(time.Hour))
	assert.Zero(t, rep.Due)
	assert.Zero(t, n.count())
}

func TestLoadFailureSkipsCycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, os.WriteFile(repo.Path(), []byte("{broken"), 0o600))
	svc := NewService(repo, &fakeNotifier{}, nil)

	rep := svc.RunCycle(ctx, t0)
	assert.True(t, rep.LoadFailed)

	raw, err := os.ReadFile(repo.Path())
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(raw))
}

func TestBrokenRuleIsParkedNotRetriggered(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	n := &fakeNotifier{}
	svc := NewService(repo, n, nil)

	r, err := domain.NewRecurring("x", nil, "0 0 * * * *", nil, t0)
	require.NoError(t, err)
	r.Schedule = domain.Recurring{Expr: "garbage"}
	require.NoError(t, repo.Save(ctx, []domain.Reminder{r}))

	rep := svc.RunCycle(ctx, t0.Add(time.Hour))
	assert.Equal(t, 1, rep.ScheduleErrors)

	got, err := repo.Resolve(ctx, r.ID.String())
	require.NoError(t, err)
	assert.Nil(t, got.NextTrigger)

	rep = svc.RunCycle(ctx, t0.Add(2*time.Hour))
	assert.Zero(t, rep.Due)
}

func TestConcurrentEditWins(t *testing.T) {
	ctx := context.Background()
	inner := newRepo(t)
	r, err := domain.NewOneTime("meeting", nil, t0, nil, t0)
	require.NoError(t, err)
	require.NoError(t, inner.Add(ctx, r))

	moved := t0.Add(24 * time.Hour)
	repo := racingRepo{Repository: inner, before: func() {
		_, err := inner.Update(ctx, r.ID.String(), func(rem *domain.Reminder) error {
			return rem.Reschedule(domain.OneTime{At: moved}, t0)
		})
		require.NoError(t, err)
	}}
	svc := NewService(repo, &fakeNotifier{}, nil)

	rep := svc.RunCycle(ctx, t0)
	assert.Equal(t, 1, rep.Delivered)
	assert.Zero(t, rep.Committed)

	got, err := inner.Resolve(ctx, r.ID.String())
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.Equal(t, moved, *got.NextTrigger)
}

func TestConcurrentAddIsKept(t *testing.T) {
	ctx := context.Background()
	inner := newRepo(t)
	r, err := domain.NewOneTime("due", nil, t0, nil, t0)
	require.NoError(t, err)
	require.NoError(t, inner.Add(ctx, r))

	added, err := domain.NewOneTime("added", nil, t0.Add(time.Hour), nil, t0)
	require.NoError(t, err)
	repo := racingRepo{Repository: inner, before: func() {
		require.NoError(t, inner.Add(ctx, added))
	}}
	svc := NewService(repo, &fakeNotifier{}, nil)

	rep := svc.RunCycle(ctx, t0)
	assert.Equal(t, 1, rep.Committed)

	rs, err := inner.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, rs, 2)
}

func TestHeartbeatCadence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := store.NewFileRepo(filepath.Join(dir, store.FileName))
	hb := heartbeat.New(filepath.Join(dir, heartbeat.FileName))
	svc := NewService(repo, &fakeNotifier{}, hb, WithHeartbeatInterval(30*time.Second))

	svc.RunCycle(ctx, t0)
	last, ok, err := hb.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(t0))

	svc.RunCycle(ctx, t0.Add(10*time.Second))
	last, _, _ = hb.Last()
	assert.True(t, last.Equal(t0))

	svc.RunCycle(ctx, t0.Add(31*time.Second))
	last, _, _ = hb.Last()
	assert.True(t, last.Equal(t0.Add(31*time.Second)))
}

func TestDeliveriesAreJournaled(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := store.NewFileRepo(filepath.Join(dir, store.FileName))
	db, err := journal.Open(filepath.Join(dir, journal.FileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	j := journal.NewSQLiteRepo(db)

	r, err := domain.NewRecurring("tick", nil, "0 * * * * *", nil, t0)
	require.NoError(t, err)
	require.NoError(t, repo.Add(ctx, r))

	svc := NewService(repo, &fakeNotifier{err: errors.New("offline")}, nil, WithJournal(j, 0))
	svc.RunCycle(ctx, t0.Add(time.Minute))

	ds, err := j.ForReminder(ctx, r.ID, 10)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.False(t, ds[0].Success)
	assert.Equal(t, "offline", ds[0].Error)
	assert.True(t, ds[0].DueAt.Equal(t0.Add(time.Minute)))
	require.NotNil(t, ds[0].Next)
	assert.True(t, ds[0].Next.Equal(t0.Add(2*time.Minute)))
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	repo := store.NewFileRepo(filepath.Join(dir, store.FileName))
	hb := heartbeat.New(filepath.Join(dir, heartbeat.FileName))
	n := &fakeNotifier{}

	r, err := domain.NewOneTime("now", nil, time.Now().Add(-time.Second), nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Add(context.Background(), r))

	svc := NewService(repo, n, hb, WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return n.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, ok, err := hb.Last()
	require.NoError(t, err)
	assert.True(t, ok)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, n.count())
}

func TestWatchStoreWakesLoop(t *testing.T) {
	repo := newRepo(t)
	svc := NewService(repo, &fakeNotifier{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.WatchStore(ctx))
	require.NoError(t, repo.Save(ctx, nil))

	assert.Eventually(t, func() bool { return len(svc.wake) == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestWatchStoreIgnoresOwnCommit(t *testing.T) {
	repo := newRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := domain.NewOneTime("stretch", nil, t0.Add(time.Minute), nil, t0)
	require.NoError(t, err)
	require.NoError(t, repo.Add(ctx, r))

	svc := NewService(repo, &fakeNotifier{}, nil)
	require.NoError(t, svc.WatchStore(ctx))

	rep := svc.RunCycle(ctx, t0.Add(2*time.Minute))
	require.Equal(t, 1, rep.Committed)
	assert.Never(t, func() bool { return len(svc.wake) > 0 }, 4*wakeDebounce, 20*time.Millisecond)

	require.NoError(t, repo.Save(ctx, nil))
	assert.Eventually(t, func() bool { return len(svc.wake) == 1 }, 2*time.Second, 20*time.Millisecond)
}
