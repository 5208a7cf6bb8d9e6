package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"reminder/internal/domain"
	"reminder/internal/journal"
	"reminder/internal/normalize"
	"reminder/internal/store"
)

type AddCmd struct {
	Title       string   `arg:"" help:"Reminder title"`
	Description string   `short:"d" help:"Longer description shown in the notification"`
	Time        string   `short:"t" help:"Fire once: '2025-01-31 14:30', '30m', 'tomorrow 9am', 'next monday'"`
	Cron        string   `short:"c" help:"Repeat: six-field cron or 'every weekday at 8:30'"`
	Tags        []string `short:"g" help:"Comma-separated tags"`
}

func (a *AddCmd) Validate() error {
	switch {
	case a.Time == "" && a.Cron == "":
		return fmt.Errorf("%w: one of --time or --cron is required", domain.ErrInvalidInput)
	case a.Time != "" && a.Cron != "":
		return fmt.Errorf("%w: --time and --cron are mutually exclusive", domain.ErrInvalidInput)
	}
	return nil
}

func (a *AddCmd) Run(g *Global) error {
	now := g.Now()
	desc := optional(a.Description)

	var (
		r   domain.Reminder
		err error
	)
	if a.Cron != "" {
		expr, perr := normalize.ParseCron(a.Cron)
		if perr != nil {
			return perr
		}
		r, err = domain.NewRecurring(a.Title, desc, expr, a.Tags, now)
	} else {
		at, perr := normalize.ParseTime(a.Time, now)
		if perr != nil {
			return perr
		}
		r, err = domain.NewOneTime(a.Title, desc, at, a.Tags, now)
	}
	if err != nil {
		return err
	}
	if err := g.Repo.Add(context.Background(), r); err != nil {
		return err
	}
	log.Info().Str("id", domain.ShortID(r.ID)).Str("schedule", r.Schedule.String()).Msg("reminder added")

	g.printf("Added reminder %s: %s\n", domain.ShortID(r.ID), r.Title)
	g.printf("  Schedule: %s\n", r.Schedule)
	g.printf("  Next:     %s\n", formatNext(r.NextTrigger, now))
	return nil
}

type ListCmd struct {
	Tag string `short:"g" help:"Only reminders with this tag"`
	All bool   `short:"a" help:"Include completed reminders"`
}

func (l *ListCmd) Run(g *Global) error {
	var (
		rs  []domain.Reminder
		err error
	)
	if l.Tag != "" {
		rs, err = g.Repo.FilterByTag(context.Background(), l.Tag)
	} else {
		rs, err = g.Repo.Load(context.Background())
	}
	if err != nil {
		return err
	}
	if !l.All {
		open := rs[:0]
		for _, r := range rs {
			if !r.Completed {
				open = append(open, r)
			}
		}
		rs = open
	}
	if len(rs) == 0 {
		g.printf("No reminders.\n")
		return nil
	}
	store.SortByNextTrigger(rs)
	g.printf("%s\n", renderTable(rs, g.Now(), g.Width))
	return nil
}

type ShowCmd struct {
	ID string `arg:"" help:"Reminder id or unique prefix"`
}

func (s *ShowCmd) Run(g *Global) error {
	r, err := g.Repo.Resolve(context.Background(), s.ID)
	if errors.Is(err, domain.ErrNotFound) {
		g.printf("Reminder %s not found.\n", s.ID)
		return nil
	}
	if err != nil {
		return err
	}
	g.printf("%s", renderDetail(r, g.Now()))
	return nil
}

type EditCmd struct {
	ID          string   `arg:"" help:"Reminder id or unique prefix"`
	Title       string   `help:"New title"`
	Description *string  `short:"d" help:"New description (empty clears it)"`
	Time        string   `short:"t" help:"Switch to a one-time schedule"`
	Cron        string   `short:"c" help:"Switch to a recurring schedule"`
	AddTags     []string `help:"Tags to add"`
	RemoveTags  []string `help:"Tags to remove"`
}

func (e *EditCmd) Validate() error {
	if e.Time != "" && e.Cron != "" {
		return fmt.Errorf("%w: --time and --cron are mutually exclusive", domain.ErrInvalidInput)
	}
	return nil
}

func (e *EditCmd) Run(g *Global) error {
	now := g.Now()

	var sched domain.Schedule
	switch {
	case e.Cron != "":
		expr, err := normalize.ParseCron(e.Cron)
		if err != nil {
			return err
		}
		sched = domain.Recurring{Expr: expr}
	case e.Time != "":
		at, err := normalize.ParseTime(e.Time, now)
		if err != nil {
			return err
		}
		sched = domain.OneTime{At: at}
	}

	var updated domain.Reminder
	ok, err := g.Repo.Update(context.Background(), e.ID, func(r *domain.Reminder) error {
		if e.Title != "" {
			r.Title = e.Title
		}
		if e.Description != nil {
			r.Description = optional(*e.Description)
		}
		for _, t := range e.AddTags {
			r.AddTag(t)
		}
		for _, t := range e.RemoveTags {
			r.Tags.Remove(strings.TrimSpace(t))
		}
		if sched != nil {
			if err := r.Reschedule(sched, now); err != nil {
				return err
			}
		}
		updated = *r
		return nil
	})
	if err != nil {
		return err
	}
	if !ok {
		g.printf("Reminder %s not found.\n", e.ID)
		return nil
	}
	g.printf("Updated reminder %s.\n", domain.ShortID(updated.ID))
	g.printf("%s", renderDetail(updated, now))
	return nil
}

type DeleteCmd struct {
	ID string `arg:"" help:"Reminder id or unique prefix"`
}

func (d *DeleteCmd) Run(g *Global) error {
	ok, err := g.Repo.Delete(context.Background(), d.ID)
	return report(g, ok, err, d.ID, "Deleted")
}

type PauseCmd struct {
	ID string `arg:"" help:"Reminder id or unique prefix"`
}

func (p *PauseCmd) Run(g *Global) error {
	ok, err := g.Repo.Pause(context.Background(), p.ID)
	return report(g, ok, err, p.ID, "Paused")
}

type ResumeCmd struct {
	ID string `arg:"" help:"Reminder id or unique prefix"`
}

func (r *ResumeCmd) Run(g *Global) error {
	ok, err := g.Repo.Resume(context.Background(), r.ID, g.Now())
	var se *domain.ScheduleError
	if ok && errors.As(err, &se) {
		g.printf("Warning: %v\n", err)
		err = nil
	}
	return report(g, ok, err, r.ID, "Resumed")
}

func report(g *Global, ok bool, err error, ref, verb string) error {
	if err != nil {
		return err
	}
	if !ok {
		g.printf("Reminder %s not found.\n", ref)
		return nil
	}
	g.printf("%s reminder %s.\n", verb, ref)
	return nil
}

type CleanCmd struct{}

func (CleanCmd) Run(g *Global) error {
	n, err := g.Repo.CleanCompleted(context.Background())
	if err != nil {
		return err
	}
	g.printf("Removed %d completed reminder(s).\n", n)
	return nil
}

type TagsCmd struct{}

func (TagsCmd) Run(g *Global) error {
	rs, err := g.Repo.Load(context.Background())
	if err != nil {
		return err
	}
	counts := map[string]int{}
	for _, r := range rs {
		for _, t := range r.Tags.Slice() {
			counts[t]++
		}
	}
	if len(counts) == 0 {
		g.printf("No tags.\n")
		return nil
	}
	names := make([]string, 0, len(counts))
	for t := range counts {
		names = append(names, t)
	}
	sort.Strings(names)
	for _, t := range names {
		g.printf("%-20s %d\n", t, counts[t])
	}
	return nil
}

type ExportCmd struct {
	Path string `arg:"" type:"path" help:"Destination file"`
}

func (e *ExportCmd) Run(g *Global) error {
	n, err := g.Repo.Export(context.Background(), e.Path)
	if err != nil {
		return err
	}
	g.printf("Exported %d reminder(s) to %s.\n", n, e.Path)
	return nil
}

type ImportCmd struct {
	Path      string `arg:"" type:"existingfile" help:"Source file"`
	Overwrite bool   `help:"Replace reminders that already exist"`
}

func (i *ImportCmd) Run(g *Global) error {
	imported, skipped, err := g.Repo.Import(context.Background(), i.Path, i.Overwrite)
	if err != nil {
		return err
	}
	g.printf("Imported %d reminder(s), skipped %d existing.\n", imported, skipped)
	return nil
}

type HistoryCmd struct {
	ID    string `arg:"" optional:"" help:"Only this reminder"`
	Limit int    `short:"n" default:"20" help:"Maximum entries"`
}

func (h *HistoryCmd) Run(g *Global) error {
	db, err := journal.Open(g.path(journal.FileName))
	if err != nil {
		return err
	}
	defer db.Close()
	j := journal.NewSQLiteRepo(db)

	var ds []journal.Delivery
	if h.ID != "" {
		r, rerr := g.Repo.Resolve(context.Background(), h.ID)
		if errors.Is(rerr, domain.ErrNotFound) {
			g.printf("Reminder %s not found.\n", h.ID)
			return nil
		}
		if rerr != nil {
			return rerr
		}
		ds, err = j.ForReminder(context.Background(), r.ID, h.Limit)
	} else {
		ds, err = j.Recent(context.Background(), h.Limit)
	}
	if err != nil {
		return err
	}
	if len(ds) == 0 {
		g.printf("No deliveries recorded.\n")
		return nil
	}
	g.printf("%s\n", renderHistory(ds))
	return nil
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
