package normalize

import (
	"errors"
	"fmt"
	"strings"

	"reminder/internal/domain"
)

var (
	// ErrInvalidCron is returned when input is neither a cron expression nor
	// a recognised English phrase.
	ErrInvalidCron = fmt.Errorf("%w: unrecognised schedule", domain.ErrInvalidInput)
	// ErrTranslation is returned when a recognised phrase translated into an
	// expression the cron parser rejects. It is a defect in the translator,
	// not a user error.
	ErrTranslation = errors.New("schedule translation produced an invalid cron expression")
)

const cronGuidance = `Use either a six-field cron expression or an English phrase.

  cron:    second minute hour day-of-month month day-of-week
           e.g. "0 0 9 * * *" (every day at 09:00)
  English: "every day at 9am", "every monday at 14:00", "every hour"

Examples:
  every minute
  every 30 minutes
  every hour
  every day at 9am
  every monday at 10:00
  every weekday at 8:30
  every month on the 1st at noon
  0 30 8 * * 1-5`

// ParseCron normalises a recurrence to a validated six-field cron expression.
// Valid cron input is returned as is; English phrases are translated.
func ParseCron(input string) (string, error) {
	expr := strings.TrimSpace(input)
	if expr == "" {
		return "", fmt.Errorf("%w\n\n%s", ErrInvalidCron, cronGuidance)
	}

	if domain.ValidateCron(expr) == nil {
		return expr, nil
	}

	translated, ok := translateEnglish(expr)
	if !ok {
		return "", fmt.Errorf("%w %q\n\n%s", ErrInvalidCron, expr, cronGuidance)
	}
	if err := domain.ValidateCron(translated); err != nil {
		return "", fmt.Errorf("%w: %q became %q: %v", ErrTranslation, expr, translated, err)
	}
	return translated, nil
}
