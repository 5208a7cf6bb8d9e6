// Package notify delivers fired reminders to the user.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AppName is shown as the notification source.
const AppName = "Reminder"

// Notifier delivers one message. A failure is reported, never fatal.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
	Name() string
}

// Log writes the reminder as a log line. It is the last resort of a Chain.
// A nil Logger means the global one.
type Log struct {
	Logger *zerolog.Logger
}

func (Log) Name() string { return "log" }

func (l Log) Notify(_ context.Context, title, body string) error {
	lg := l.Logger
	if lg == nil {
		lg = &log.Logger
	}
	lg.Warn().Msgf("REMINDER: %s - %s", title, body)
	return nil
}

// Chain tries notifiers in order and stops at the first success.
type Chain []Notifier

func (c Chain) Name() string { return "chain" }

func (c Chain) Notify(ctx context.Context, title, body string) error {
	if len(c) == 0 {
		return errors.New("no notifiers configured")
	}
	var errs []error
	for _, n := range c {
		err := n.Notify(ctx, title, body)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
	}
	return errors.Join(errs...)
}

// Fanout delivers to every notifier and reports all failures.
type Fanout []Notifier

func (f Fanout) Name() string { return "fanout" }

func (f Fanout) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, title, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
