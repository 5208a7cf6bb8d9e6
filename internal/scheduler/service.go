// Package scheduler runs the daemon loop: poll the store, notify about due
// reminders, advance them and report liveness.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"reminder/internal/domain"
	"reminder/internal/heartbeat"
	"reminder/internal/journal"
	"reminder/internal/metrics"
	"reminder/internal/notify"
	"reminder/internal/store"
)

const (
	DefaultInterval          = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

type Service struct {
	repo     store.Repository
	notifier notify.Notifier
	hb       *heartbeat.File
	journal  journal.Repository
	metrics  metrics.Recorder
	now      func() time.Time

	interval       time.Duration
	heartbeatEvery time.Duration
	retention      time.Duration

	lastBeat  time.Time
	lastPrune time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wake     chan struct{}

	ownMu    sync.Mutex
	ownWrite fileStamp
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.heartbeatEvery = d
		}
	}
}

// WithJournal records every delivery attempt. Entries older than retention
// are pruned once a day; zero keeps everything.
func WithJournal(j journal.Repository, retention time.Duration) Option {
	return func(s *Service) {
		s.journal = j
		s.retention = retention
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewService builds the loop. hb may be nil when liveness is not tracked.
func NewService(repo store.Repository, notifier notify.Notifier, hb *heartbeat.File, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		notifier:       notifier,
		hb:             hb,
		metrics:        metrics.Nop{},
		now:            time.Now,
		interval:       DefaultInterval,
		heartbeatEvery: DefaultHeartbeatInterval,
		stop:           make(chan struct{}),
		wake:           make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run loops until ctx is cancelled or Stop is called. A cycle in progress is
// always finished before returning.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Str("store", s.repo.Path()).Msg("reminder daemon started")
	s.beat(s.now())
	s.RunCycle(ctx, s.now())

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reminder daemon stopping")
			return
		case <-s.stop:
			log.Info().Msg("reminder daemon stopping")
			return
		case <-ticker.C:
			s.RunCycle(ctx, s.now())
		case <-s.wake:
			s.RunCycle(ctx, s.now())
		}
	}
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Wake requests an early cycle. Requests made while one is pending coalesce.
func (s *Service) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// CycleReport summarises one pass over the store.
type CycleReport struct {
	LoadFailed     bool
	Due            int
	Delivered      int
	Failed         int
	ScheduleErrors int
	Committed      int
	SaveFailed     bool
}

type handled struct {
	due    time.Time
	failed bool
}

// RunCycle performs one poll. Errors are logged and counted; none of them
// stop the loop.
func (s *Service) RunCycle(ctx context.Context, now time.Time) CycleReport {
	started := time.Now()
	var rep CycleReport
	defer func() {
		s.metrics.CycleCompleted(time.Since(started), rep.LoadFailed)
		s.maybeBeat(now)
		s.maybePrune(ctx, now)
	}()

	rs, err := s.repo.Load(ctx)
	if err != nil {
		rep.LoadFailed = true
		log.Error().Err(err).Msg("failed to load reminders, skipping cycle")
		return rep
	}

	plan := make(map[uuid.UUID]handled)
	for i := range rs {
		r := &rs[i]
		if !r.IsDue(now) {
			continue
		}
		rep.Due++
		due := *r.NextTrigger
		h := handled{due: due}

		body := ""
		if r.Description != nil {
			body = *r.Description
		}
		nerr := s.notifier.Notify(ctx, r.Title, body)
		if nerr != nil {
			h.failed = true
			rep.Failed++
			log.Error().Err(nerr).Str("id", domain.ShortID(r.ID)).Str("title", r.Title).Msg("notification failed")
		} else {
			rep.Delivered++
			log.Info().Str("id", domain.ShortID(r.ID)).Str("title", r.Title).Time("due", due).Msg("reminder triggered")
		}
		s.metrics.Triggered(nerr == nil)

		if serr := r.CalculateNextTrigger(now); serr != nil {
			rep.ScheduleErrors++
			s.metrics.ScheduleFailed()
			log.Error().Err(serr).Str("id", domain.ShortID(r.ID)).Msg("failed to compute next trigger")
		}
		plan[r.ID] = h
		s.record(ctx, *r, due, now, nerr)
	}

	s.reportCounts(rs)
	if len(plan) == 0 {
		return rep
	}

	ids := make([]uuid.UUID, 0, len(plan))
	for id := range plan {
		ids = append(ids, id)
	}
	n, err := s.repo.UpdateMany(ctx, ids, func(cur *domain.Reminder) bool {
		h := plan[cur.ID]
		// Someone edited or rescheduled it since we looked; their change wins.
		if cur.NextTrigger == nil || !cur.NextTrigger.Equal(h.due) {
			return false
		}
		_ = cur.CalculateNextTrigger(now)
		return true
	})
	if err != nil {
		rep.SaveFailed = true
		s.metrics.SaveFailed()
		log.Error().Err(err).Int("handled", len(plan)).Msg("failed to save handled reminders")
		return rep
	}
	rep.Committed = n
	if n > 0 {
		s.noteOwnWrite()
	}
	if skipped := len(plan) - n; skipped > 0 {
		log.Debug().Int("skipped", skipped).Msg("reminders changed concurrently, kept their edits")
	}
	return rep
}

func (s *Service) record(ctx context.Context, r domain.Reminder, due, now time.Time, nerr error) {
	if s.journal == nil {
		return
	}
	d := journal.Delivery{
		ReminderID: r.ID,
		Title:      r.Title,
		DueAt:      due,
		FiredAt:    now,
		Success:    nerr == nil,
		Next:       r.NextTrigger,
	}
	if nerr != nil {
		d.Error = nerr.Error()
	}
	if _, err := s.journal.Record(ctx, d); err != nil {
		log.Warn().Err(err).Str("id", domain.ShortID(r.ID)).Msg("failed to journal delivery")
	}
}

func (s *Service) reportCounts(rs []domain.Reminder) {
	var active, paused, completed int
	for i := range rs {
		switch rs[i].Status() {
		case domain.StatusActive:
			active++
		case domain.StatusPaused:
			paused++
		case domain.StatusCompleted:
			completed++
		}
	}
	s.metrics.Reminders(active, paused, completed)
}

func (s *Service) maybeBeat(now time.Time) {
	if !s.lastBeat.IsZero() && now.Sub(s.lastBeat) < s.heartbeatEvery {
		return
	}
	s.beat(now)
}

func (s *Service) beat(now time.Time) {
	if s.hb == nil {
		return
	}
	if err := s.hb.Beat(now); err != nil {
		log.Warn().Err(err).Msg("failed to write heartbeat")
		return
	}
	s.lastBeat = now
	s.metrics.Heartbeat(now)
}

func (s *Service) maybePrune(ctx context.Context, now time.Time) {
	if s.journal == nil || s.retention <= 0 {
		return
	}
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < 24*time.Hour {
		return
	}
	s.lastPrune = now
	n, err := s.journal.Prune(ctx, now.Add(-s.retention))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("failed to prune delivery journal")
		return
	}
	if n > 0 {
		log.Info().Int("removed", n).Msg("pruned delivery journal")
	}
}
