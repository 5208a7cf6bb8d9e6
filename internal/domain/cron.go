package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronFields is the number of fields in a canonical expression:
// second minute hour day-of-month month day-of-week.
const CronFields = 6

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var errNoOccurrence = errors.New("rule has no future occurrence")

// ValidateCron validates a six-field cron expression.
func ValidateCron(expr string) error {
	if n := len(strings.Fields(expr)); n != CronFields {
		return fmt.Errorf("expected %d fields, got %d", CronFields, n)
	}
	_, err := cronParser.Parse(expr)
	return err
}

// NextOccurrence returns the first activation of expr strictly after from.
func NextOccurrence(expr string, from time.Time) (time.Time, error) {
	if err := ValidateCron(expr); err != nil {
		return time.Time{}, err
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(from)
	if next.IsZero() {
		return time.Time{}, errNoOccurrence
	}
	return next, nil
}
